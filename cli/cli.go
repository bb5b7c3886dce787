package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/bokwoon95/mgen"
	"github.com/bokwoon95/mgen/stacktrace"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
	"golang.org/x/term"
)

// Version is the version of the mgen binary, set at build time.
var Version = "dev"

// NewLogger returns the JSON logger used by every command.
func NewLogger(stdout io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logHandler := slog.NewJSONHandler(stdout, &slog.HandlerOptions{
		AddSource: true,
		Level:     level,
	})
	return slog.New(logHandler).With(slog.String("version", Version))
}

// TargetConfig is the contents of target.json, which describes where sites
// are generated into. Followers receive a copy of every file written to the
// target.
type TargetConfig struct {
	// Provider is either "directory" or "sftp".
	Provider string `json:"provider"`

	// FilePath is the output directory. For the directory provider it
	// defaults to the target option.
	FilePath string `json:"filePath"`

	// TempDir is where files are staged before being moved into place.
	TempDir string `json:"tempDir"`

	// The fields below are only used by the sftp provider.
	User                 string `json:"user"`
	Password             string `json:"password"`
	Host                 string `json:"host"`
	Port                 string `json:"port"`
	AuthenticationMethod string `json:"authenticationMethod"`

	// Followers of the target.
	Followers []TargetConfig `json:"followers"`
}

// PublishConfig is the contents of publish.json, which describes where
// sites are published to.
type PublishConfig struct {
	// Provider is either "s3" or "directory".
	Provider string `json:"provider"`

	// FilePath is the destination directory of the directory provider.
	FilePath string `json:"filePath"`

	// The fields below are only used by the s3 provider.
	Endpoint        string `json:"endpoint"`
	Region          string `json:"region"`
	Bucket          string `json:"bucket"`
	Prefix          string `json:"prefix"`
	AccessKeyID     string `json:"accessKeyID"`
	SecretAccessKey string `json:"secretAccessKey"`

	// Concurrency is the maximum number of concurrent uploads.
	Concurrency int `json:"concurrency"`

	// LimitInterval is the minimum interval between two uploads, as a Go
	// duration string.
	LimitInterval string `json:"limitInterval"`

	// LimitBurst is the number of uploads allowed to bypass LimitInterval.
	LimitBurst int `json:"limitBurst"`

	// Delete removes published objects that the site does not have anymore.
	Delete bool `json:"delete"`
}

// decodeConfigFile decodes the JSON file into v. It reports whether the file
// exists; an empty file counts as missing.
func decodeConfigFile(filePath string, v any) (exists bool, err error) {
	b, err := os.ReadFile(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("%s: %w", filePath, err)
	}
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return false, nil
	}
	decoder := json.NewDecoder(bytes.NewReader(b))
	decoder.DisallowUnknownFields()
	err = decoder.Decode(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", filePath, err)
	}
	return true, nil
}

// LoadTarget returns the output filesystem described by target.json in the
// config dir. Without a target.json the output is the local directory
// targetDir. The returned closers must be closed once the filesystem is no
// longer needed, even if an error is returned.
func LoadTarget(configDir, targetDir string, logger *slog.Logger) (mgen.FS, []io.Closer, error) {
	var closers []io.Closer
	configFile := filepath.Join(configDir, "target.json")
	var targetConfig TargetConfig
	exists, err := decodeConfigFile(configFile, &targetConfig)
	if err != nil {
		return nil, closers, err
	}
	if !exists {
		targetConfig.Provider = "directory"
	}
	if targetConfig.Provider == "directory" && targetConfig.FilePath == "" {
		targetConfig.FilePath = targetDir
	}
	var filesystems []mgen.FS
	for _, config := range append([]TargetConfig{targetConfig}, targetConfig.Followers...) {
		if len(config.Followers) > 0 && len(filesystems) > 0 {
			return nil, closers, fmt.Errorf("%s: followers cannot have followers", configFile)
		}
		fsys, closer, err := newFS(config)
		if closer != nil {
			closers = append(closers, closer)
		}
		if err != nil {
			return nil, closers, fmt.Errorf("%s: %w", configFile, err)
		}
		filesystems = append(filesystems, fsys)
	}
	if len(filesystems) == 1 {
		return filesystems[0], closers, nil
	}
	replicatedFS, err := mgen.NewReplicatedFS(mgen.ReplicatedFSConfig{
		Leader:    filesystems[0],
		Followers: filesystems[1:],
		Logger:    logger,
	})
	if err != nil {
		return nil, closers, err
	}
	// The replicated FS closes its members.
	return replicatedFS, []io.Closer{replicatedFS}, nil
}

func newFS(config TargetConfig) (mgen.FS, io.Closer, error) {
	switch config.Provider {
	case "", "directory":
		if config.FilePath == "" {
			return nil, nil, fmt.Errorf("missing filePath field")
		}
		err := os.MkdirAll(config.FilePath, 0755)
		if err != nil {
			return nil, nil, err
		}
		directoryFS, err := mgen.NewDirectoryFS(mgen.DirectoryFSConfig{
			RootDir: config.FilePath,
			TempDir: config.TempDir,
		})
		if err != nil {
			return nil, nil, err
		}
		return directoryFS, nil, nil
	case "sftp":
		if config.Host == "" {
			return nil, nil, fmt.Errorf("missing host field")
		}
		if !strings.HasPrefix(config.FilePath, "/") {
			return nil, nil, fmt.Errorf("filePath %q is not an absolute path", config.FilePath)
		}
		sshClientConfig, err := newSSHClientConfig(config)
		if err != nil {
			return nil, nil, err
		}
		port := ":22"
		if config.Port != "" {
			port = ":" + config.Port
		}
		sftpFS, err := mgen.NewSFTPFS(mgen.SFTPFSConfig{
			NewSSHClient: func() (*ssh.Client, error) {
				sshClient, err := ssh.Dial("tcp", config.Host+port, sshClientConfig)
				if err != nil {
					return nil, stacktrace.New(err)
				}
				return sshClient, nil
			},
			RootDir: config.FilePath,
			TempDir: config.TempDir,
		})
		if err != nil {
			return nil, nil, err
		}
		return sftpFS, sftpFS, nil
	default:
		return nil, nil, fmt.Errorf("unsupported provider %q (possible values: directory, sftp)", config.Provider)
	}
}

func newSSHClientConfig(config TargetConfig) (*ssh.ClientConfig, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	hostKeyCallback, err := knownhosts.New(filepath.Join(homeDir, ".ssh", "known_hosts"))
	if err != nil {
		return nil, err
	}
	sshClientConfig := &ssh.ClientConfig{
		User:            config.User,
		HostKeyCallback: hostKeyCallback,
		Timeout:         30 * time.Second,
	}
	switch config.AuthenticationMethod {
	case "", "password":
		password := config.Password
		if password == "" {
			fmt.Fprintf(os.Stderr, "password for %s@%s: ", config.User, config.Host)
			b, err := term.ReadPassword(int(syscall.Stdin))
			fmt.Fprintln(os.Stderr)
			if err != nil {
				return nil, err
			}
			password = string(b)
		}
		sshClientConfig.Auth = []ssh.AuthMethod{
			ssh.Password(password),
		}
	case "publickey":
		pemBytes, err := os.ReadFile(filepath.Join(homeDir, ".ssh", "id_rsa"))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("%s does not exist", filepath.Join(homeDir, ".ssh", "id_rsa"))
			}
			return nil, err
		}
		signer, err := ssh.ParsePrivateKey(pemBytes)
		if err != nil {
			return nil, err
		}
		sshClientConfig.Auth = []ssh.AuthMethod{
			ssh.PublicKeys(signer),
		}
	default:
		return nil, fmt.Errorf("invalid authenticationMethod %q", config.AuthenticationMethod)
	}
	return sshClientConfig, nil
}

// LoadPublishConfig reads publish.json from the config dir.
func LoadPublishConfig(configDir string) (PublishConfig, error) {
	configFile := filepath.Join(configDir, "publish.json")
	var publishConfig PublishConfig
	exists, err := decodeConfigFile(configFile, &publishConfig)
	if err != nil {
		return PublishConfig{}, err
	}
	if !exists {
		return PublishConfig{}, fmt.Errorf("%s does not exist", configFile)
	}
	if publishConfig.LimitInterval != "" {
		_, err := time.ParseDuration(publishConfig.LimitInterval)
		if err != nil {
			return PublishConfig{}, fmt.Errorf("%s: limitInterval: %w", configFile, err)
		}
	}
	return publishConfig, nil
}

// NewObjectStorage returns the object storage described by publishConfig.
func NewObjectStorage(ctx context.Context, publishConfig PublishConfig, logger *slog.Logger) (mgen.ObjectStorage, error) {
	switch publishConfig.Provider {
	case "directory":
		if publishConfig.FilePath == "" {
			return nil, fmt.Errorf("publish.json: missing filePath field")
		}
		storage, err := mgen.NewDirObjectStorage(publishConfig.FilePath)
		if err != nil {
			return nil, err
		}
		return storage, nil
	case "s3":
		for _, field := range []struct{ name, value string }{
			{"endpoint", publishConfig.Endpoint},
			{"region", publishConfig.Region},
			{"bucket", publishConfig.Bucket},
			{"accessKeyID", publishConfig.AccessKeyID},
			{"secretAccessKey", publishConfig.SecretAccessKey},
		} {
			if field.value == "" {
				return nil, fmt.Errorf("publish.json: missing %s field", field.name)
			}
		}
		storage, err := mgen.NewS3Storage(ctx, mgen.S3StorageConfig{
			Endpoint:        publishConfig.Endpoint,
			Region:          publishConfig.Region,
			Bucket:          publishConfig.Bucket,
			Prefix:          publishConfig.Prefix,
			AccessKeyID:     publishConfig.AccessKeyID,
			SecretAccessKey: publishConfig.SecretAccessKey,
			Logger:          logger,
		})
		if err != nil {
			return nil, err
		}
		return storage, nil
	default:
		return nil, fmt.Errorf("publish.json: unsupported provider %q (possible values: s3, directory)", publishConfig.Provider)
	}
}
