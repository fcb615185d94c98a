package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/mustafaciftc/sesli-sohbet/internal/adapters/rtc"
	"github.com/mustafaciftc/sesli-sohbet/internal/client/peer"
	"github.com/mustafaciftc/sesli-sohbet/internal/client/session"
	"github.com/mustafaciftc/sesli-sohbet/internal/client/signaling"
	"github.com/mustafaciftc/sesli-sohbet/internal/client/voice"
	"github.com/mustafaciftc/sesli-sohbet/internal/domain"
	"github.com/mustafaciftc/sesli-sohbet/internal/protocol"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

var joinCmd = &cobra.Command{
	Use:   "join ROOM",
	Short: "Join a room and chat from stdin",
	Long: `Joins ROOM and reads commands from stdin:
  /mute        toggle mute
  /talk        start push-to-talk
  /stop        stop push-to-talk
  /who         list participants
  /stats       show connection health
  /quit        leave the room
Any other line is sent as a chat message.`,
	Args: cobra.ExactArgs(1),
	RunE: runJoin,
}

func init() {
	joinCmd.Flags().Bool("no-mic", false, "join text only")
	joinCmd.Flags().Duration("grace", peer.DefaultGrace, "how long a failed peer may recover")
	joinCmd.Flags().Duration("sweep", 2*time.Second, "stale speaker sweep interval")
	_ = viper.BindPFlags(joinCmd.Flags())
}

func signalURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/api/ws/signal"
	return u.String(), nil
}

func runJoin(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	wsURL, err := signalURL(viper.GetString("server"))
	if err != nil {
		return session.NewError("parse server url", err)
	}
	factory, err := rtc.NewFactory(rtc.DefaultWebRTCConfig())
	if err != nil {
		return session.NewError("init media", err)
	}

	bus := signaling.NewBus()
	client := signaling.NewClient(wsURL, viper.GetString("token"), bus)
	sink := rtc.NewSink()
	peers := peer.NewManager(factory, client, sink, peer.WithGrace(viper.GetDuration("grace")))
	store := voice.NewStore()

	var mic session.MicrophoneFunc
	if !viper.GetBool("no-mic") {
		mic = func(ctx context.Context) (peer.LocalTrack, error) {
			m, err := rtc.NewMicrophone(ctx, "voicectl")
			if err != nil {
				return nil, err
			}
			return m, nil
		}
	}
	sess := session.New(client, bus, peers, store, mic, session.WithErrorHandler(func(err error) {
		fmt.Fprintf(os.Stderr, "! %v\n", err)
	}))
	defer sess.Close()

	bus.Subscribe(protocol.TypeNewMessage, func(ev signaling.Event) {
		var msg protocol.NewMessage
		if ev.Decode(&msg) == nil {
			fmt.Printf("[%s] %s: %s\n", msg.Message.Timestamp.Format(time.Kitchen), msg.Message.Username, msg.Message.Content)
		}
	})
	bus.Subscribe(protocol.TypeUserJoined, func(ev signaling.Event) {
		var msg protocol.UserJoined
		if ev.Decode(&msg) == nil {
			fmt.Printf("* %s joined\n", msg.Username)
		}
	})
	bus.Subscribe(protocol.TypeUserLeft, func(ev signaling.Event) {
		var msg protocol.UserLeft
		if ev.Decode(&msg) == nil {
			fmt.Printf("* %s left\n", msg.Username)
		}
	})

	if err := client.Connect(ctx); err != nil {
		return session.NewError("connect to server", err)
	}
	defer client.Close()

	if err := sess.Initialize(ctx, domain.RoomID(args[0])); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		store.RunSweeper(gctx, viper.GetDuration("sweep"))
		return nil
	})
	g.Go(func() error {
		select {
		case <-client.Done():
			return errors.New("signaling connection lost")
		case <-gctx.Done():
			return nil
		}
	})
	g.Go(func() error {
		defer cancel()
		return readCommands(gctx, sess, store, peers)
	})
	err = g.Wait()
	log.Info().Str("module", "voicectl").Msg("leaving")
	return err
}

func readCommands(ctx context.Context, sess *session.Session, store *voice.Store, peers *peer.Manager) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := runCommand(strings.TrimSpace(line), sess, store, peers)
			if err != nil {
				fmt.Fprintf(os.Stderr, "! %v\n", err)
			}
			if quit {
				return nil
			}
		}
	}
}

func runCommand(line string, sess *session.Session, store *voice.Store, peers *peer.Manager) (bool, error) {
	switch line {
	case "":
		return false, nil
	case "/quit":
		return true, nil
	case "/mute":
		muted, err := sess.ToggleMute()
		if err == nil {
			fmt.Printf("* muted: %t\n", muted)
		}
		return false, err
	case "/talk":
		return false, sess.StartSpeaking()
	case "/stop":
		return false, sess.StopSpeaking()
	case "/who":
		renderParticipants(store.Participants())
		return false, nil
	case "/stats":
		renderStats(store.RoomStats(), peers.RefreshStats())
		return false, nil
	}
	if strings.HasPrefix(line, "/") {
		return false, fmt.Errorf("unknown command %s", line)
	}
	store.MarkRead()
	return false, sess.SendMessage(line, domain.MessageText)
}

func renderParticipants(ps []voice.Participant) {
	t := newTable()
	t.AppendHeader(table.Row{"User", "Socket", "Muted", "Speaking"})
	for _, p := range ps {
		t.AppendRow(table.Row{p.Username, p.ConnID, p.IsMuted, p.IsSpeaking})
	}
	t.Render()
}

func renderStats(rs voice.RoomStats, recs []peer.Record) {
	t := newTable()
	t.AppendHeader(table.Row{"Peer", "State", "Pkts out", "Pkts in", "Bytes out", "Bytes in"})
	for _, r := range recs {
		t.AppendRow(table.Row{r.Remote, r.State, r.Stats.PacketsSent, r.Stats.PacketsReceived, r.Stats.BytesSent, r.Stats.BytesReceived})
	}
	t.AppendFooter(table.Row{"Health", rs.Health, "Participants", rs.Participants, "Speaking", rs.Speaking})
	t.Render()
}
