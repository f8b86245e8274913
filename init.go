package main

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/phobologic/cssmodules/internal/config"
)

const configHeader = `# cssmodules configuration.
#
# mode: local (default), global, pure or icss.
# localIdentName placeholders: [name] [local] [path] [folder] [ext]
#   [hash] [contenthash] [<fn>:hash:<digest>:<length>], e.g. [hash:base64:5].
# exportsConvention: asIs, camelCase, camelCaseOnly, dashes or dashesOnly.
# Every key can be overridden with a CSSMODULES_ environment variable,
# e.g. CSSMODULES_MODE=pure or CSSMODULES_BUILD_FORMAT=json.

`

func newInitCmd(a *app) *cobra.Command {
	var dryRun, force bool
	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Write a default .cssmodules.toml",
		Long: `Write a .cssmodules.toml holding the default settings to dir (default ".").
An existing file is left untouched unless --force is given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}
			return runInit(a, dir, dryRun, force)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the file instead of writing it")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	return cmd
}

func runInit(a *app, dir string, dryRun, force bool) error {
	content, err := renderConfig(config.Default())
	if err != nil {
		return err
	}
	if dryRun {
		_, _ = fmt.Fprint(a.stdout, content)
		return nil
	}

	path := filepath.Join(dir, config.FileName+".toml")
	if !force {
		if existing, err := existingConfig(dir); err != nil {
			return err
		} else if existing != "" {
			return fmt.Errorf("%s already exists (use --force to overwrite)", existing)
		}
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	_, _ = fmt.Fprintf(a.stderr, "wrote %s\n", path)
	return nil
}

// renderConfig returns the commented TOML form of cfg. It is a pure
// function for easy testing.
func renderConfig(cfg *config.Config) (string, error) {
	var buf bytes.Buffer
	buf.WriteString(configHeader)
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return "", fmt.Errorf("encoding config: %w", err)
	}
	return buf.String(), nil
}

// existingConfig returns the path of a config file already present in dir,
// in any supported format.
func existingConfig(dir string) (string, error) {
	for _, ext := range []string{".toml", ".yaml", ".yml", ".json"} {
		path := filepath.Join(dir, config.FileName+ext)
		_, err := os.Stat(path)
		if err == nil {
			return path, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
	}
	return "", nil
}
