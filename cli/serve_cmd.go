package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

type ServeCmd struct {
	Target string
	Addr   string
	Logger *slog.Logger
	Stdout io.Writer
}

func ServeCommand(logger *slog.Logger, args ...string) (*ServeCmd, error) {
	cmd := ServeCmd{
		Logger: logger,
	}
	var addr string
	flagset := flag.NewFlagSet("", flag.ContinueOnError)
	flagset.StringVar(&addr, "addr", "localhost:6444", "Address to serve the site on.")
	flagset.Usage = func() {
		fmt.Fprintln(flagset.Output(), `Usage:
  mgen serve [FLAGS]
Serves the generated target directory for previewing.
Flags:`)
		flagset.PrintDefaults()
	}
	options, err := parseOptions(flagset, args)
	if err != nil {
		return nil, err
	}
	if flagset.NArg() > 0 {
		flagset.Usage()
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(flagset.Args(), " "))
	}
	cmd.Target = options.Target
	cmd.Addr = addr
	return &cmd, nil
}

func (cmd *ServeCmd) Run() error {
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	if cmd.Logger == nil {
		cmd.Logger = NewLogger(cmd.Stdout, false)
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return servePreview(ctx, cmd.Stdout, cmd.Addr, cmd.Target, cmd.Logger)
}

// NewPreviewHandler serves the generated site in rootDir. Directories are
// served through their index.html only and nothing is cached by the client.
func NewPreviewHandler(rootDir string) http.Handler {
	fileServer := http.FileServer(http.Dir(rootDir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Redirect unclean paths to the clean path equivalent.
		if r.Method == "GET" || r.Method == "HEAD" {
			cleanPath := path.Clean(r.URL.Path)
			if cleanPath != "/" && path.Ext(cleanPath) == "" {
				cleanPath += "/"
			}
			if cleanPath != r.URL.Path {
				cleanURL := *r.URL
				cleanURL.Path = cleanPath
				http.Redirect(w, r, cleanURL.String(), http.StatusMovedPermanently)
				return
			}
		}
		if strings.HasSuffix(r.URL.Path, "/") {
			_, err := os.Stat(filepath.Join(rootDir, filepath.FromSlash(r.URL.Path), "index.html"))
			if err != nil {
				http.NotFound(w, r)
				return
			}
		}
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		fileServer.ServeHTTP(w, r)
	})
}

// servePreview serves rootDir on addr until ctx is done.
func servePreview(ctx context.Context, stdout io.Writer, addr, rootDir string, logger *slog.Logger) error {
	server := &http.Server{
		Addr:        addr,
		Handler:     NewPreviewHandler(rootDir),
		ErrorLog:    slog.NewLogLogger(logger.Handler(), slog.LevelError),
		ReadTimeout: 60 * time.Second,
		IdleTimeout: 120 * time.Second,
	}
	listener, err := net.Listen("tcp", server.Addr)
	if err != nil {
		return err
	}
	serveErr := make(chan error, 1)
	go func() {
		err := server.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()
	fmt.Fprintf(stdout, "serving %s on http://%s/\n", rootDir, listener.Addr().String())
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return err
		}
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
