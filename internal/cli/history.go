package cli

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"nda-clarity/internal/domain"
	"nda-clarity/internal/storage"
)

func (a *app) historyCmd() *cobra.Command {
	var (
		limit     int
		sessionID string
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent state transitions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			store, err := storage.OpenSQLite(cmd.Context(), cfg.SQLitePath)
			if err != nil {
				return fmt.Errorf("open history: %w", err)
			}
			defer store.Close()

			var items []domain.Transition
			if sessionID != "" {
				items, err = store.ListTransitions(cmd.Context(), sessionID)
			} else {
				items, err = store.RecentTransitions(cmd.Context(), limit)
			}
			if err != nil {
				return err
			}
			if a.v.GetBool("json") {
				return a.printJSON(items)
			}
			if len(items) == 0 {
				fmt.Fprintln(a.out, "No history yet.")
				return nil
			}

			tw := table.NewWriter()
			tw.SetOutputMirror(a.out)
			tw.AppendHeader(table.Row{"At", "Session", "Seq", "From", "To", "Intent", "Note", "Message"})
			for _, t := range items {
				to := string(t.To)
				if t.Stage != "" {
					to = fmt.Sprintf("%s(%s)", t.To, t.Stage)
				}
				tw.AppendRow(table.Row{t.At.Format("2006-01-02 15:04:05"), t.SessionID, t.Seq, t.From, to, t.IntentID, t.Note, t.Message})
			}
			tw.Render()
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of transitions to show")
	cmd.Flags().StringVar(&sessionID, "session", "", "show one session in order")
	return cmd
}
