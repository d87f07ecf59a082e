package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"sealpost/internal/domain"
	"sealpost/internal/session"
)

// mailLoader is implemented by accounts that can import raw mail.
type mailLoader interface {
	LoadMail(ctx context.Context, raw []byte) (domain.Message, error)
}

type dumpedDocument struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Rev     int64  `json:"rev"`
	Content string `json:"content"`
}

func maintenanceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "maintenance",
		Short: "Offline maintenance of an account",
	}
	cmd.AddCommand(
		maintenanceSub("reset", "Delete all mail and restore the default mailboxes", cobra.NoArgs, reset),
		maintenanceSub("load-mails FILE...", "Import RFC 5322 files into INBOX", cobra.MinimumNArgs(1), loadMails),
		maintenanceSub("dump", "Print every stored document as JSON lines", cobra.NoArgs, dump),
		maintenanceSub("sync", "Run one sync pass", cobra.NoArgs, func(ctx context.Context, _ *cobra.Command, s *session.Session, _ []string) error {
			return s.Sync(ctx)
		}),
	)
	return cmd
}

type maintenanceFunc func(ctx context.Context, cmd *cobra.Command, s *session.Session, args []string) error

// maintenanceSub opens a session without background jobs, runs fn and
// closes everything again.
func maintenanceSub(use, short string, args cobra.PositionalArgs, fn maintenanceFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, argv []string) (err error) {
			settings.StartBackgroundJobs = false
			ctx := cmd.Context()

			w, sess, err := openSession(ctx, cmd, false)
			if err != nil {
				return err
			}
			defer func() {
				closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
				defer cancel()
				err = errors.Join(err, w.Close(closeCtx))
			}()
			return fn(ctx, cmd, sess, argv)
		},
	}
}

func reset(ctx context.Context, _ *cobra.Command, s *session.Session, _ []string) error {
	if err := s.Account().Reset(ctx); err != nil {
		return err
	}
	return s.Sync(ctx)
}

func loadMails(ctx context.Context, cmd *cobra.Command, s *session.Session, files []string) error {
	loader, ok := s.Account().(mailLoader)
	if !ok {
		return errors.New("account cannot import mail")
	}
	for _, path := range files {
		raw, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		msg, err := loader.LoadMail(ctx, raw)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "loaded %s as %s\n", path, msg.ID)
	}
	return s.Sync(ctx)
}

func dump(ctx context.Context, cmd *cobra.Command, s *session.Session, _ []string) error {
	docs, err := s.Store().List(ctx, "")
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	for _, d := range docs {
		out := dumpedDocument{ID: d.ID, Type: d.Type, Rev: d.Rev, Content: string(d.Content)}
		if err := enc.Encode(out); err != nil {
			return err
		}
	}
	return nil
}
