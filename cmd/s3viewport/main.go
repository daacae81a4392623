// Command s3viewport mounts an S3-compatible bucket as a read-only
// filesystem. This file is the CLI and daemonization glue wired around
// the cache-and-fetch core in internal/.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"bazil.org/fuse"
	fusefs "bazil.org/fuse/fs"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/bremac/s3viewport/internal/config"
	"github.com/bremac/s3viewport/internal/fetch"
	"github.com/bremac/s3viewport/internal/fsops"
	"github.com/bremac/s3viewport/internal/pathcache"
	"github.com/bremac/s3viewport/internal/vstore"
)

const daemonizedEnvVar = "S3VIEWPORT_DAEMONIZED"

func main() {
	os.Exit(run())
}

func run() int {
	var (
		bucket      string
		accessKey   string
		secretKey   string
		configFile  string
		noInput     bool
		foreground  bool
		watchConfig bool
		verbose     bool
	)

	root := &cobra.Command{
		Use:   "s3viewport mount-point",
		Short: "Mount an S3 bucket as a read-only filesystem",
		Args:  cobra.ExactArgs(1),
	}
	flags := root.Flags()
	flags.StringVar(&bucket, "bucket", "", "S3 bucket to mount")
	flags.StringVar(&accessKey, "access-key", "", "access key for the bucket")
	flags.StringVar(&secretKey, "secret-key", "", "secret key for the bucket")
	flags.StringVar(&configFile, "config-file", "~/.s3viewport.yaml", "path to the configuration file")
	flags.BoolVar(&noInput, "no-input", false, "don't prompt for missing information")
	flags.BoolVar(&foreground, "foreground", false, "run filesystem server in the foreground")
	flags.BoolVar(&watchConfig, "watch-config", false, "reload configuration when the config file changes")
	flags.BoolVarP(&verbose, "verbose", "v", false, "log the resolved source of every required configuration field")

	exitCode := 0
	root.RunE = func(cmd *cobra.Command, positional []string) error {
		if verbose {
			logrus.SetLevel(logrus.DebugLevel)
		}

		args := config.CLIArgs{
			MountPoint: positional[0],
			ConfigFile: configFile,
		}
		if cmd.Flags().Changed("bucket") {
			args.Bucket = &bucket
		}
		if cmd.Flags().Changed("access-key") {
			args.AccessKey = &accessKey
		}
		if cmd.Flags().Changed("secret-key") {
			args.SecretKey = &secretKey
		}
		if cmd.Flags().Changed("no-input") {
			args.NoInput = &noInput
		}
		if cmd.Flags().Changed("foreground") {
			args.Foreground = &foreground
		}

		resolved, err := config.Load(args, config.TerminalPrompter{})
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			exitCode = 1
			return nil
		}
		resolved.WatchConfig = watchConfig

		if !resolved.Foreground && os.Getenv(daemonizedEnvVar) == "" {
			return daemonize()
		}

		exitCode = serve(resolved)
		return nil
	}

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return exitCode
}

// daemonize re-executes the current process detached from the
// controlling terminal; --foreground is the opt-out of this default
// daemonized behaviour.
// Go cannot safely fork(2) a multi-threaded runtime in place, so the
// conventional approach is to re-exec self in a new session and let the
// parent exit once the child is launched.
func daemonize() error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}

	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	defer devNull.Close()

	attr := &os.ProcAttr{
		Env:   append(os.Environ(), daemonizedEnvVar+"=1"),
		Files: []*os.File{devNull, devNull, devNull},
		Sys:   &syscall.SysProcAttr{Setsid: true},
	}
	child, err := os.StartProcess(exe, os.Args, attr)
	if err != nil {
		return err
	}
	return child.Release()
}

func serve(resolved *config.Resolved) int {
	log := logrus.WithField("component", "main")

	scratchDir := filepath.Join(homeScratchRoot(), resolved.Bucket)
	if err := os.MkdirAll(scratchDir, 0o700); err != nil {
		log.WithError(err).Error("failed to create scratch directory")
		return 1
	}

	client, err := vstore.New(vstore.Config{
		Bucket:    resolved.Bucket,
		AccessKey: resolved.AccessKey,
		SecretKey: resolved.SecretKey,
	})
	if err != nil {
		log.WithError(err).Error("failed to initialize object-store client")
		return 1
	}

	attrs := pathcache.NewAttributeCache(resolved.AttributeCacheLifetime)
	dirs := pathcache.NewDirectoryCache(resolved.DirectoryCacheLifetime)
	files := pathcache.NewFileCache(resolved.FileCacheLifetime, resolved.FileCacheMaxBytes, resolved.FileCacheMaxFiles)

	fetcher := fetch.New(attrs, dirs, files, client, scratchDir)
	mount := fsops.New(fetcher, attrs, dirs, files)

	if resolved.WatchConfig {
		watcher, err := config.Watch(resolved.ConfigFile, config.CLIArgs{MountPoint: resolved.MountPoint, ConfigFile: resolved.ConfigFile}, func(r *config.Resolved) {
			log.WithField("request", uuid.NewString()).Info("configuration file changed, purging caches")
			mount.Destroy()
		})
		if err != nil {
			log.WithError(err).Warn("failed to start config watcher, continuing without it")
		} else {
			defer watcher.Close()
		}
	}

	conn, err := fuse.Mount(
		resolved.MountPoint,
		fuse.FSName("s3viewport"),
		fuse.Subtype("s3viewportfs"),
		fuse.ReadOnly(),
	)
	if err != nil {
		log.WithError(err).Error("failed to mount")
		return 1
	}
	defer conn.Close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("received shutdown signal, unmounting")
		_ = fuse.Unmount(resolved.MountPoint)
	}()

	serveErr := fusefs.Serve(conn, &fsops.FS{Mount: mount})
	mount.Destroy()
	if serveErr != nil {
		log.WithError(serveErr).Error("filesystem server exited with error")
		return 1
	}

	<-conn.Ready
	if err := conn.MountError; err != nil {
		log.WithError(err).Error("mount error")
		return 1
	}

	return 0
}

func homeScratchRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return filepath.Join(home, ".s3viewport", "cache")
}
