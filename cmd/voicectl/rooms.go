package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/mustafaciftc/sesli-sohbet/internal/domain"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var httpClient = &http.Client{Timeout: 10 * time.Second}

var roomsCmd = &cobra.Command{
	Use:   "rooms",
	Short: "List live rooms",
	RunE: func(cmd *cobra.Command, _ []string) error {
		var rooms []domain.RoomStatus
		if err := getJSON(cmd, "/api/rooms", &rooms); err != nil {
			return err
		}
		t := newTable()
		t.AppendHeader(table.Row{"Room", "Participants"})
		for _, r := range rooms {
			t.AppendRow(table.Row{r.RoomID, r.ParticipantCount})
		}
		t.AppendFooter(table.Row{"Total", len(rooms)})
		t.Render()
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status ROOM",
	Short: "Show the live participant count of a room",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var st struct {
			RoomID           string `json:"roomId"`
			ParticipantCount int    `json:"participantCount"`
			MaxParticipants  int    `json:"maxParticipants"`
		}
		if err := getJSON(cmd, "/api/rooms/"+url.PathEscape(args[0])+"/status", &st); err != nil {
			return err
		}
		t := newTable()
		t.AppendRow(table.Row{"Room", st.RoomID})
		t.AppendRow(table.Row{"Participants", fmt.Sprintf("%d / %d", st.ParticipantCount, st.MaxParticipants)})
		t.Render()
		return nil
	},
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleRounded)
	return t
}

func getJSON(cmd *cobra.Command, path string, v any) error {
	base := strings.TrimRight(viper.GetString("server"), "/")
	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, base+path, nil)
	if err != nil {
		return err
	}
	if tok := viper.GetString("token"); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		var body struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return fmt.Errorf("get %s: %s: %w", path, resp.Status, domain.FromCode(body.Error))
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
