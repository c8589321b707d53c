package stores

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/liut/kaiwa/pkg/models/convo"
)

// LoadPreset read the yaml preset file, an empty name returns the built-in preset
func LoadPreset(name string) (doc convo.Preset, err error) {
	if len(name) > 0 {
		var yf *os.File
		yf, err = os.Open(name)
		if err != nil {
			logger().Infow("load preset fail", "file", name, "err", err)
			return
		}
		defer yf.Close()
		err = yaml.NewDecoder(yf).Decode(&doc)
		if err != nil {
			logger().Infow("decode preset fail", "err", err)
			return
		}
	}

	return
}
