package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v2"
	"golang.org/x/text/language"

	"github.com/liut/kaiwa/pkg/models/convo"
	"github.com/liut/kaiwa/pkg/practice"
	"github.com/liut/kaiwa/pkg/services/llm"
	"github.com/liut/kaiwa/pkg/services/stores"
	"github.com/liut/kaiwa/pkg/services/tutor"
	"github.com/liut/kaiwa/pkg/settings"
)

func talkCommand() *cli.Command {
	return &cli.Command{
		Name:  "talk",
		Usage: "practice in the terminal, each typed line is one utterance",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "relay", Usage: "relay endpoint, empty to call the model directly",
				Value: "http://localhost" + settings.Current.HTTPListen + "/api/chat"},
			&cli.BoolFlag{Name: "direct", Usage: "call the model with the stored api key"},
			&cli.StringFlag{Name: "level", Value: string(convo.DefaultLevel), Usage: "eiken3, eiken-pre2 or eiken2"},
			&cli.StringFlag{Name: "lang", Value: "en-US", Usage: "speech language"},
			&cli.StringFlag{Name: "say", Usage: "speech command, like say or espeak"},
			&cli.StringFlag{Name: "redis", Usage: "redis uri for keeping history and key"},
		},
		Action: talkAction,
	}
}

func talkAction(c *cli.Context) error {
	out := os.Stdout

	var store practice.Storage = practice.NewMemoryStorage()
	if uri := c.String("redis"); len(uri) > 0 {
		store = stores.NewKV(stores.MustOpenRC(uri), "")
	}
	lang, err := language.Parse(c.String("lang"))
	if err != nil {
		return fmt.Errorf("bad lang %q: %w", c.String("lang"), err)
	}

	preset, err := stores.LoadPreset(settings.Current.PresetFile)
	if err != nil {
		return err
	}

	var relay practice.Relay
	if c.Bool("direct") || len(c.String("relay")) == 0 {
		relay = practice.NewDirectRelay(llm.Config{
			Provider: settings.Current.Provider,
			Model:    settings.ModelName(),
			BaseURL:  settings.Current.OpenAIBaseURL,
		}, tutor.Options{
			HistoryLimit: settings.Current.HistoryLimit,
			Timeout:      settings.Current.ChatTimeout,
			PromptMode:   settings.Current.PromptMode,
			Preset:       &preset,
		}, func() string {
			key, _ := store.Get(practice.KeyAPIKey)
			return key
		})
	} else {
		relay = practice.NewHTTPRelay(c.String("relay"))
	}

	ctl := practice.New(relay, practice.NewConsoleTranscript(out),
		practice.WithRecognizer(practice.NewPromptRecognizer(out)),
		practice.WithSynthesizer(practice.NewCommandSynth(out, c.String("say"))),
		practice.WithStorage(store),
		practice.WithLang(lang),
		practice.WithHistoryLimit(settings.Current.HistoryLimit),
		practice.WithLevel(c.String("level")),
		practice.WithWelcome(preset.GetWelcome()),
	)
	if err = ctl.Init(); err != nil {
		return err
	}
	fmt.Fprintln(out, "commands: /level <name>, /clear, /key <value>, /forget-key, /quit")
	if err = ctl.Start(); err != nil {
		return err
	}

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "/") {
			_ = ctl.Heard(c.Context, line)
			continue
		}
		cmd, arg, _ := strings.Cut(line, " ")
		switch cmd {
		case "/quit", "/exit":
			ctl.Stop()
			return nil
		case "/level":
			ctl.SetLevel(arg)
		case "/clear":
			ctl.Clear()
		case "/key":
			if err := ctl.SetAPIKey(arg); err != nil {
				fmt.Fprintln(out, "key not saved:", err)
			}
		case "/forget-key":
			_ = ctl.ClearAPIKey()
		default:
			fmt.Fprintln(out, "unknown command", cmd)
		}
		if !ctl.Active() {
			_ = ctl.Start()
		}
	}
	ctl.Stop()
	return scanner.Err()
}
