// Package config implements the YAML configuration file, its merge with
// command-line flags, and the required-field prompt/validation flow:
// built-in defaults -> "defaults:" section -> matching "mount-points.<p>"
// section -> CLI flags, with CLI flags filtered to only the ones the user
// actually set so they never shadow a lower-precedence value with a
// default.
package config

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/term"
	"gopkg.in/yaml.v2"

	"github.com/bremac/s3viewport/internal/siunit"
)

// requiredFields lists the settings that must be present after merge, in
// prompt order, paired with the prompt text shown on the controlling
// terminal when --no-input is not set.
var requiredFields = []struct {
	key    string
	prompt string
	secret bool
}{
	{"mount-point", "Mount point: ", false},
	{"bucket", "S3 bucket: ", false},
	{"access-key", "Access key: ", false},
	{"secret-key", "Secret key: ", true},
}

// CLIArgs is the subset of parsed command-line flags relevant to
// configuration merge. A field is considered "set" (and therefore
// included in the merge) only if its pointer is non-nil, so an unset CLI
// flag never shadows a file-provided value by accident.
type CLIArgs struct {
	MountPoint string // always set: the one positional argument
	Bucket     *string
	AccessKey  *string
	SecretKey  *string
	ConfigFile string // defaults to ~/.s3viewport.yaml if empty
	NoInput    *bool
	Foreground *bool
}

// Resolved is the fully merged, typed configuration used by the rest of
// the program.
type Resolved struct {
	MountPoint string
	Bucket     string
	AccessKey  string
	SecretKey  string
	NoInput    bool
	Foreground bool

	AttributeCacheLifetime time.Duration
	DirectoryCacheLifetime time.Duration
	FileCacheLifetime      time.Duration
	FileCacheMaxBytes      int64
	FileCacheMaxFiles      int

	WatchConfig bool
	ConfigFile  string
}

// builtinDefaults holds the settings applied before any file or CLI
// value is merged in.
func builtinDefaults() map[string]interface{} {
	return map[string]interface{}{
		"foreground": false,
		"no-input":   false,
		"attribute-cache": map[string]interface{}{
			"lifetime": 3600,
		},
		"directory-cache": map[string]interface{}{
			"lifetime": 60,
		},
		"file-cache": map[string]interface{}{
			"lifetime":  3600,
			"max-bytes": "100M",
			"max-files": 1000,
		},
	}
}

// Load reads the configuration file (if present) and the given CLI args,
// merges them in precedence order, validates or prompts for required
// fields, and returns the resolved configuration.
//
// prompter is used for prompting (normally TerminalPrompter); passing nil
// disables prompting even when --no-input is unset, which is used by
// tests.
func Load(args CLIArgs, prompter Prompter) (*Resolved, error) {
	mountPoint, err := expandPath(args.MountPoint)
	if err != nil {
		return nil, errors.Wrap(err, "failed to resolve mount point")
	}

	configFile := args.ConfigFile
	if configFile == "" {
		configFile = "~/.s3viewport.yaml"
	}
	configFilePath, err := expandPath(configFile)
	if err != nil {
		return nil, errors.Wrap(err, "failed to resolve config file path")
	}

	defaultsSection, mountSection, err := readFile(configFilePath, mountPoint)
	if err != nil {
		return nil, err
	}

	merged := builtinDefaults()
	deepMerge(merged, defaultsSection)
	deepMerge(merged, mountSection)
	deepMerge(merged, argsToMap(args, mountPoint))

	noInput, _ := merged["no-input"].(bool)

	if err := fillRequired(merged, noInput, prompter); err != nil {
		return nil, err
	}

	resolved, err := typed(merged)
	if err != nil {
		return nil, err
	}
	resolved.ConfigFile = configFilePath

	logResolution(merged, defaultsSection, mountSection, args)

	return resolved, nil
}

// argsToMap builds the CLI-precedence layer: only flags the user
// actually supplied.
func argsToMap(args CLIArgs, mountPoint string) map[string]interface{} {
	m := map[string]interface{}{"mount-point": mountPoint}
	if args.Bucket != nil {
		m["bucket"] = *args.Bucket
	}
	if args.AccessKey != nil {
		m["access-key"] = *args.AccessKey
	}
	if args.SecretKey != nil {
		m["secret-key"] = *args.SecretKey
	}
	if args.NoInput != nil {
		m["no-input"] = *args.NoInput
	}
	if args.Foreground != nil {
		m["foreground"] = *args.Foreground
	}
	return m
}

// readFile reads the defaults: and mount-points.<mountPoint>: sections of
// the YAML config file. A missing file is not an error (mirrors the
// original's os.path.exists check): it simply yields two empty sections.
func readFile(path, mountPoint string) (defaults, mountSection map[string]interface{}, err error) {
	data, err := ioutil.ReadFile(path)
	if os.IsNotExist(err) {
		return map[string]interface{}{}, map[string]interface{}{}, nil
	}
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to read config file %q", path)
	}

	var doc struct {
		Defaults    map[string]interface{}            `yaml:"defaults"`
		MountPoints map[string]map[string]interface{} `yaml:"mount-points"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, nil, errors.Wrapf(err, "failed to parse config file %q", path)
	}

	if doc.Defaults == nil {
		doc.Defaults = map[string]interface{}{}
	}

	for p, section := range doc.MountPoints {
		expanded, err := expandPath(p)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "failed to resolve mount-points key %q", p)
		}
		if expanded == mountPoint {
			return doc.Defaults, section, nil
		}
	}

	return doc.Defaults, map[string]interface{}{}, nil
}

// deepMerge merges src into dst in place: dict-valued keys merge
// recursively, scalar-valued keys are overwritten. Applying the same
// merge twice is a no-op the second time (scalars get the same value
// again; dicts recurse into the same no-op).
func deepMerge(dst, src map[string]interface{}) {
	for k, v := range src {
		srcMap, ok := v.(map[string]interface{})
		if yamlMap, isYAML := v.(map[interface{}]interface{}); isYAML {
			// yaml.v2 decodes nested mappings with interface{} keys.
			srcMap, ok = make(map[string]interface{}, len(yamlMap)), true
			for yk, yv := range yamlMap {
				srcMap[fmt.Sprint(yk)] = yv
			}
		}
		if ok {
			dstMap, ok := dst[k].(map[string]interface{})
			if !ok {
				dstMap = map[string]interface{}{}
			}
			deepMerge(dstMap, srcMap)
			dst[k] = dstMap
			continue
		}
		dst[k] = v
	}
}

// fillRequired validates or fills in the required settings: under
// --no-input a missing field is an error, otherwise the prompter is
// asked for it.
func fillRequired(merged map[string]interface{}, noInput bool, prompter Prompter) error {
	var missing []string
	for _, f := range requiredFields {
		if _, ok := merged[f.key]; !ok || merged[f.key] == "" {
			missing = append(missing, f.key)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	if noInput {
		for _, field := range missing {
			fmt.Fprintf(os.Stderr, "error: missing configuration for %q\n", field)
		}
		return errors.New("missing required configuration")
	}

	if prompter == nil {
		return errors.Errorf("missing required configuration %v and no prompter available", missing)
	}

	for _, f := range requiredFields {
		if _, ok := merged[f.key]; ok && merged[f.key] != "" {
			continue
		}
		value, err := prompter.Prompt(f.prompt, f.secret)
		if err != nil {
			return errors.Wrapf(err, "failed to read %q", f.key)
		}
		merged[f.key] = value
	}
	return nil
}

func typed(merged map[string]interface{}) (*Resolved, error) {
	r := &Resolved{}

	r.MountPoint, _ = merged["mount-point"].(string)
	r.Bucket, _ = merged["bucket"].(string)
	r.AccessKey, _ = merged["access-key"].(string)
	r.SecretKey, _ = merged["secret-key"].(string)
	r.NoInput, _ = merged["no-input"].(bool)
	r.Foreground, _ = merged["foreground"].(bool)

	attrLifetime, err := sectionInt(merged, "attribute-cache", "lifetime", 3600)
	if err != nil {
		return nil, err
	}
	dirLifetime, err := sectionInt(merged, "directory-cache", "lifetime", 60)
	if err != nil {
		return nil, err
	}
	fileLifetime, err := sectionInt(merged, "file-cache", "lifetime", 3600)
	if err != nil {
		return nil, err
	}
	r.AttributeCacheLifetime = time.Duration(attrLifetime) * time.Second
	r.DirectoryCacheLifetime = time.Duration(dirLifetime) * time.Second
	r.FileCacheLifetime = time.Duration(fileLifetime) * time.Second

	maxFiles, err := sectionInt(merged, "file-cache", "max-files", 1000)
	if err != nil {
		return nil, err
	}
	r.FileCacheMaxFiles = maxFiles

	maxBytesStr := "100M"
	if fc, ok := merged["file-cache"].(map[string]interface{}); ok {
		if v, ok := fc["max-bytes"]; ok {
			maxBytesStr = fmt.Sprintf("%v", v)
		}
	}
	maxBytes, err := siunit.ParseBytes(maxBytesStr)
	if err != nil {
		return nil, errors.Wrap(err, "invalid file-cache.max-bytes")
	}
	r.FileCacheMaxBytes = maxBytes

	return r, nil
}

func sectionInt(merged map[string]interface{}, section, key string, def int) (int, error) {
	m, ok := merged[section].(map[string]interface{})
	if !ok {
		return def, nil
	}
	v, ok := m[key]
	if !ok {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	default:
		return 0, errors.Errorf("%s.%s must be a number, got %v", section, key, v)
	}
}

func expandPath(p string) (string, error) {
	expanded, err := homedir.Expand(p)
	if err != nil {
		return "", err
	}
	if !filepath.IsAbs(expanded) {
		abs, err := filepath.Abs(expanded)
		if err != nil {
			return "", err
		}
		expanded = abs
	}
	return filepath.Clean(expanded), nil
}

func logResolution(merged, defaults, mountSection map[string]interface{}, args CLIArgs) {
	log := logrus.WithField("component", "config")
	cli := argsToMap(args, "")
	for _, f := range requiredFields {
		source := "prompt"
		switch {
		case f.key == "mount-point":
			source = "CLI argument"
		case has(cli, f.key):
			source = "CLI flag"
		case has(mountSection, f.key):
			source = "mount-points section"
		case has(defaults, f.key):
			source = "defaults section"
		}
		if f.secret {
			log.WithFields(logrus.Fields{"field": f.key, "source": source}).Debug("resolved configuration field")
			continue
		}
		log.WithFields(logrus.Fields{"field": f.key, "value": merged[f.key], "source": source}).Debug("resolved configuration field")
	}
}

func has(m map[string]interface{}, key string) bool {
	_, ok := m[key]
	return ok
}

// Prompter reads a single required setting from the controlling
// terminal, disabling echo when secret is true (secret-key).
type Prompter interface {
	Prompt(label string, secret bool) (string, error)
}

// TerminalPrompter implements Prompter against the process's real
// controlling terminal, using golang.org/x/term to disable tty echo
// while the secret key is typed.
type TerminalPrompter struct{}

func (TerminalPrompter) Prompt(label string, secret bool) (string, error) {
	fmt.Fprint(os.Stderr, label)
	if !secret {
		var line string
		_, err := fmt.Scanln(&line)
		return strings.TrimSpace(line), err
	}
	data, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
