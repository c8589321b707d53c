package settings

// set by -ldflags "-X github.com/liut/kaiwa/pkg/settings.version=..."
var version = "dev"
