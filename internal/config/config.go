// Package config loads project settings for the cssmodules command from
// .cssmodules.{toml,yaml,yml,json} and CSSMODULES_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/phobologic/cssmodules/internal/compile"
	"github.com/phobologic/cssmodules/internal/ident"
	"github.com/phobologic/cssmodules/internal/manifest"
)

// FileName is the config file name without extension.
const FileName = ".cssmodules"

// EnvPrefix prefixes environment overrides, e.g. CSSMODULES_MODE=pure.
const EnvPrefix = "CSSMODULES"

// Config is the project configuration.
type Config struct {
	Mode              string `mapstructure:"mode" toml:"mode"`
	DefaultScope      string `mapstructure:"defaultScope" toml:"defaultScope,omitempty"`
	URL               bool   `mapstructure:"url" toml:"url"`
	Import            bool   `mapstructure:"import" toml:"import"`
	LocalIdentName    string `mapstructure:"localIdentName" toml:"localIdentName"`
	LocalIdentSalt    string `mapstructure:"localIdentSalt" toml:"localIdentSalt,omitempty"`
	LocalIdentPrefix  string `mapstructure:"localIdentPrefix" toml:"localIdentPrefix,omitempty"`
	HashFunction      string `mapstructure:"hashFunction" toml:"hashFunction"`
	HashDigest        string `mapstructure:"hashDigest" toml:"hashDigest"`
	HashDigestLength  int    `mapstructure:"hashDigestLength" toml:"hashDigestLength"`
	ExportsConvention string `mapstructure:"exportsConvention" toml:"exportsConvention"`

	Build BuildConfig `mapstructure:"build" toml:"build"`
	Log   LogConfig   `mapstructure:"log" toml:"log"`
}

// BuildConfig holds defaults for the build command's flags.
type BuildConfig struct {
	OnlyModules bool     `mapstructure:"onlyModules" toml:"onlyModules"`
	Exclude     []string `mapstructure:"exclude" toml:"exclude"`
	Format      string   `mapstructure:"format" toml:"format"`
	Cache       string   `mapstructure:"cache" toml:"cache,omitempty"`
	Out         string   `mapstructure:"out" toml:"out,omitempty"`
	PublicPath  string   `mapstructure:"publicPath" toml:"publicPath,omitempty"`
	SyntaxCheck bool     `mapstructure:"syntaxCheck" toml:"syntaxCheck"`
	SourceMaps  bool     `mapstructure:"sourceMaps" toml:"sourceMaps"`
}

// LogConfig sets the log level used when no -v or -q flag is given.
type LogConfig struct {
	Level string `mapstructure:"level" toml:"level"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Mode:              string(compile.ModeLocal),
		URL:               true,
		Import:            true,
		LocalIdentName:    ident.DefaultTemplate,
		HashFunction:      ident.DefaultHashFunction,
		HashDigest:        ident.DefaultHashDigest,
		HashDigestLength:  ident.DefaultHashDigestLength,
		ExportsConvention: string(compile.AsIs),
		Build: BuildConfig{
			Exclude: []string{},
			Format:  string(manifest.FormatTOON),
		},
		Log: LogConfig{Level: "warn"},
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("mode", d.Mode)
	v.SetDefault("defaultScope", d.DefaultScope)
	v.SetDefault("url", d.URL)
	v.SetDefault("import", d.Import)
	v.SetDefault("localIdentName", d.LocalIdentName)
	v.SetDefault("localIdentSalt", d.LocalIdentSalt)
	v.SetDefault("localIdentPrefix", d.LocalIdentPrefix)
	v.SetDefault("hashFunction", d.HashFunction)
	v.SetDefault("hashDigest", d.HashDigest)
	v.SetDefault("hashDigestLength", d.HashDigestLength)
	v.SetDefault("exportsConvention", d.ExportsConvention)
	v.SetDefault("build.onlyModules", d.Build.OnlyModules)
	v.SetDefault("build.exclude", d.Build.Exclude)
	v.SetDefault("build.format", d.Build.Format)
	v.SetDefault("build.cache", d.Build.Cache)
	v.SetDefault("build.out", d.Build.Out)
	v.SetDefault("build.publicPath", d.Build.PublicPath)
	v.SetDefault("build.syntaxCheck", d.Build.SyntaxCheck)
	v.SetDefault("build.sourceMaps", d.Build.SourceMaps)
	v.SetDefault("log.level", d.Log.Level)
}

// Load reads the config file in root, if any, and applies environment
// overrides. It returns the path of the file that was read ("" if none).
func Load(root string) (*Config, string, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName(FileName)
	v.AddConfigPath(root)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	used := ""
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, "", fmt.Errorf("read config: %w", err)
		}
	} else {
		used = v.ConfigFileUsed()
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", fmt.Errorf("decode config: %w", err)
	}
	return &cfg, used, nil
}

// CompileOptions converts the configuration into compiler options. Imports
// are resolved against the files under root.
func (c *Config) CompileOptions(root string) (compile.Options, error) {
	mode, err := compile.ParseMode(c.Mode)
	if err != nil {
		return compile.Options{}, &Error{Field: "mode", Err: err}
	}
	conv, err := compile.ParseExportsConvention(c.ExportsConvention)
	if err != nil {
		return compile.Options{}, &Error{Field: "exportsConvention", Err: err}
	}
	opts := compile.Options{
		Mode:              mode,
		DefaultScope:      c.DefaultScope,
		URL:               c.URL,
		Import:            c.Import,
		LocalIdentName:    c.LocalIdentName,
		LocalIdentSalt:    c.LocalIdentSalt,
		LocalIdentPrefix:  c.LocalIdentPrefix,
		HashFunction:      c.HashFunction,
		HashDigest:        c.HashDigest,
		HashDigestLength:  c.HashDigestLength,
		ExportsConvention: conv,
		Resolver:          compile.FileResolver{FS: os.DirFS(root)},
	}
	if err := opts.Validate(); err != nil {
		return compile.Options{}, &Error{Err: err}
	}
	return opts, nil
}

// Error reports an invalid configuration value.
type Error struct {
	Field string
	Err   error
}

func (e *Error) Error() string {
	if e.Field == "" {
		return "config: " + e.Err.Error()
	}
	return "config error in field '" + e.Field + "': " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}
