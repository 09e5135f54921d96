package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tbourn/go-voice-assistant/internal/artifact"
	"github.com/tbourn/go-voice-assistant/internal/domain"
	"github.com/tbourn/go-voice-assistant/internal/services"
	"github.com/tbourn/go-voice-assistant/internal/utils"
)

var (
	sessionPage     int
	sessionPageSize int
	sessionJSON     bool
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect or reset the stored conversation",
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print one page of the conversation, oldest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := openLedger(cfg.DB)
		if err != nil {
			return err
		}
		defer closeDB(db)

		page, size := utils.ClampPage(strconv.Itoa(sessionPage), strconv.Itoa(sessionPageSize))
		svc := &services.SessionService{DB: db}
		items, total, err := svc.ListPage(cmd.Context(), page, size)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if sessionJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(items)
		}
		printMessages(out, items)
		fmt.Fprintf(out, "page %d, %d of %d messages\n", page, len(items), total)
		return nil
	},
}

var sessionClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every message with its audio rows and files",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := openLedger(cfg.DB)
		if err != nil {
			return err
		}
		defer closeDB(db)

		store, err := artifact.New(cfg.AudioDir)
		if err != nil {
			return err
		}
		res, err := (&services.SessionService{DB: db, Store: store}).Clear(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "session cleared, %d files removed\n", res.FilesRemoved)
		return nil
	},
}

func init() {
	sessionListCmd.Flags().IntVar(&sessionPage, "page", utils.DefaultPage, "page number")
	sessionListCmd.Flags().IntVar(&sessionPageSize, "page-size", utils.DefaultPageSize, "messages per page")
	sessionListCmd.Flags().BoolVar(&sessionJSON, "json", false, "print JSON")

	sessionCmd.AddCommand(sessionListCmd, sessionClearCmd)
	rootCmd.AddCommand(sessionCmd)
}

func printMessages(w io.Writer, msgs []domain.Message) {
	for _, m := range msgs {
		audio := "-"
		switch {
		case m.Merged != nil:
			audio = "merged"
		case len(m.Segments) > 0:
			audio = fmt.Sprintf("%d segments", len(m.Segments))
		}
		fmt.Fprintf(w, "%s  %-9s  %-6s  %-12s  %s\n",
			m.CreatedAt.Format("2006-01-02 15:04:05"), m.Role, m.InputType, audio, m.Content)
	}
}
