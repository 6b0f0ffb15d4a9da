package config

import "reflect"

// ConfigDiff describes what changed between two configs. Speech preferences,
// the allergen profile, and the log level can be applied without a restart;
// everything else (server, providers, history) requires one.
type ConfigDiff struct {
	SpeechChanged  bool
	NewSpeech      SpeechConfig
	ProfileChanged bool
	NewProfile     ProfileConfig

	LogLevelChanged bool
	NewLogLevel     LogLevel

	// RestartRequired is set when a change cannot be hot-applied.
	RestartRequired bool
}

// HotApplicable reports whether the diff contains any change that can be
// applied without a restart.
func (d ConfigDiff) HotApplicable() bool {
	return d.SpeechChanged || d.ProfileChanged || d.LogLevelChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Speech != new.Speech {
		d.SpeechChanged = true
		d.NewSpeech = new.Speech
	}

	if !reflect.DeepEqual(old.Profile, new.Profile) {
		d.ProfileChanged = true
		d.NewProfile = new.Profile
	}

	// Log level aside, any server change needs a rebind or new TLS material.
	serverOld, serverNew := old.Server, new.Server
	serverOld.LogLevel, serverNew.LogLevel = "", ""
	if !reflect.DeepEqual(serverOld, serverNew) {
		d.RestartRequired = true
	}
	if !reflect.DeepEqual(old.Providers, new.Providers) {
		d.RestartRequired = true
	}
	if old.Capture != new.Capture {
		d.RestartRequired = true
	}
	if old.History != new.History {
		d.RestartRequired = true
	}

	return d
}
