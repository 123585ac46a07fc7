// Command pvchat is a terminal client for the virtual patient chat. It
// talks to the platform backend directly and keeps its transcripts in the
// same local state file as the gateway, so the two can be used
// interchangeably.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Alexandru89754/TestPV-V2/internal/config"
	"github.com/Alexandru89754/TestPV-V2/internal/identity"
	"github.com/Alexandru89754/TestPV-V2/internal/remote"
	"github.com/Alexandru89754/TestPV-V2/internal/session"
	"github.com/Alexandru89754/TestPV-V2/internal/store"
)

// app holds the pieces every subcommand needs, built once in the root
// command's PersistentPreRunE.
type app struct {
	cfg     *config.Config
	store   store.Store
	backend *remote.Client
	log     zerolog.Logger
	closeFn func()
}

func main() {
	a := &app{}
	root := newRootCmd(a)
	err := root.Execute()
	if a.closeFn != nil {
		a.closeFn()
	}
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "pvchat",
		Short:         "Virtual patient chat from the terminal",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
	}

	root.AddCommand(
		newParticipantCmd(a),
		newLoginCmd(a),
		newRegisterCmd(a),
		newChatCmd(a),
		newHistoryCmd(a),
		newAnxietyCmd(a),
		newClearCmd(a),
		newCloseCmd(a),
		newLogoutCmd(a),
		newUploadCmd(a),
	)
	return root
}

func (a *app) init() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = zerolog.New(os.Stderr).Level(zerolog.WarnLevel).With().Timestamp().Logger()

	switch cfg.StoreDriver {
	case config.DriverSQLite:
		st, err := store.NewSQLiteStore(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		a.store = st
		a.closeFn = func() { _ = st.Close() }
	case config.DriverMemory:
		a.store = store.NewMemoryStore()
	default:
		st, err := store.NewFileStore(cfg.StatePath)
		if err != nil {
			return err
		}
		a.store = st
	}

	a.backend = remote.NewClient(cfg.BackendURL, remote.Paths{
		Chat:    cfg.ChatPath,
		ChatEnd: cfg.ChatEndPath,
		Upload:  cfg.UploadPath,
	}, cfg.HTTPTimeout)
	if token, ok := a.store.Get(store.TokenKey()); ok {
		a.backend.SetToken(token)
	}
	return nil
}

// identity resolves the active identity from stored auth state.
func (a *app) identity() (string, error) {
	code, _ := a.store.Get(store.ParticipantKey())
	email, _ := a.store.Get(store.UserEmailKey())
	id, ok := identity.Resolve(identity.AuthState{ParticipantCode: code, AccountEmail: email})
	if !ok {
		return "", fmt.Errorf("not signed in: run 'pvchat participant <code>' or 'pvchat login <email>'")
	}
	return id, nil
}

func (a *app) manager(sink session.Sink) (*session.Manager, error) {
	id, err := a.identity()
	if err != nil {
		return nil, err
	}
	mgr, err := session.NewManager(id, session.Options{
		Store:    a.store,
		Backend:  a.backend,
		Sink:     sink,
		Logger:   a.log,
		Greeting: a.cfg.GreetingText,
		Cleared:  a.cfg.ClearedText,
	})
	if err != nil {
		return nil, err
	}
	if err := mgr.Initialize(); err != nil {
		return nil, err
	}
	return mgr, nil
}

func newParticipantCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "participant <code>",
		Short: "Enter with a study participant code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := identity.Normalize(args[0])
			if err != nil {
				return err
			}
			if err := a.store.Set(store.ParticipantKey(), code); err != nil {
				return err
			}
			fmt.Printf("participant %s\n", code)
			return nil
		},
	}
}

func newLoginCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "login <email>",
		Short: "Sign in with an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.authenticate(cmd.Context(), args[0], a.backend.Login)
		},
	}
}

func newRegisterCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "register <email>",
		Short: "Create an account and sign in",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.authenticate(cmd.Context(), args[0], a.backend.Register)
		},
	}
}

func (a *app) authenticate(ctx context.Context, email string, call func(context.Context, remote.Credentials) (*remote.TokenResponse, error)) error {
	fmt.Print("password: ")
	reader := bufio.NewReader(os.Stdin)
	password, err := reader.ReadString('\n')
	if err != nil {
		return err
	}
	password = strings.TrimRight(password, "\r\n")

	tok, err := call(ctx, remote.Credentials{Email: email, Password: password})
	if err != nil {
		return err
	}
	a.backend.SetToken(tok.AccessToken)
	if err := a.store.Set(store.TokenKey(), tok.AccessToken); err != nil {
		return err
	}
	if err := a.store.Set(store.UserEmailKey(), email); err != nil {
		return err
	}
	fmt.Printf("signed in as %s\n", email)
	return nil
}

func newChatCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Interactive chat with the virtual patient",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := session.NewTypewriter(a.cfg.TypingChunk, a.cfg.TypingTick)
			sink := newTermSink(os.Stdout, tw)
			mgr, err := a.manager(sink)
			if err != nil {
				return err
			}
			defer tw.FinalizeAll()

			fmt.Println("commands: /clear /close /anxiety <1-10> /quit")
			scanner := bufio.NewScanner(os.Stdin)
			for {
				fmt.Print("you> ")
				if !scanner.Scan() {
					break
				}
				line := strings.TrimSpace(scanner.Text())
				switch {
				case line == "":
					continue
				case line == "/quit":
					return scanner.Err()
				case line == "/clear":
					if err := mgr.Clear(); err != nil {
						fmt.Fprintf(os.Stderr, "error: %v\n", err)
					}
				case line == "/close":
					if err := mgr.CloseSession(cmd.Context()); err != nil {
						fmt.Fprintf(os.Stderr, "error: %v\n", err)
					}
				case strings.HasPrefix(line, "/anxiety "):
					level, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "/anxiety ")))
					if err != nil {
						fmt.Fprintln(os.Stderr, "usage: /anxiety <1-10>")
						continue
					}
					if err := mgr.SetAnxietyLevel(level); err != nil {
						fmt.Fprintf(os.Stderr, "error: %v\n", err)
					}
				default:
					// Send renders through the sink; errors already show
					// up as transcript messages.
					_ = mgr.Send(cmd.Context(), line)
					sink.Wait()
				}
			}
			return scanner.Err()
		},
	}
}

func newHistoryCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "Print the stored transcript",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := a.manager(session.NopSink{})
			if err != nil {
				return err
			}
			sink := newTermSink(os.Stdout, session.NewTypewriter(1, 0))
			sink.Reset(mgr.Messages())
			return nil
		},
	}
}

func newAnxietyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "anxiety <1-10>",
		Short: "Record the pre-chat anxiety rating",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			level, err := strconv.Atoi(args[0])
			if err != nil {
				return session.ErrInvalidAnxiety
			}
			mgr, err := a.manager(session.NopSink{})
			if err != nil {
				return err
			}
			return mgr.SetAnxietyLevel(level)
		},
	}
}

func newClearCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Clear the transcript, keeping the session open",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := a.manager(session.NopSink{})
			if err != nil {
				return err
			}
			return mgr.Clear()
		},
	}
}

func newCloseCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "close",
		Short: "Archive the session to the backend and start fresh",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := a.manager(session.NopSink{})
			if err != nil {
				return err
			}
			if err := mgr.CloseSession(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("session archived")
			return nil
		},
	}
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and drop local state for this identity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := a.manager(session.NopSink{})
			if err != nil {
				return err
			}
			if err := mgr.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("signed out")
			return nil
		},
	}
}

func newUploadCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a consultation recording",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := a.identity()
			if err != nil {
				return err
			}
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			res, err := a.backend.UploadVideo(cmd.Context(), id, filepath.Base(args[0]), f)
			if err != nil {
				return err
			}
			fmt.Printf("uploaded: %s\n", res.Path)
			return nil
		},
	}
}
