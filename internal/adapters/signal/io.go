package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mustafaciftc/sesli-sohbet/internal/domain"
	"github.com/mustafaciftc/sesli-sohbet/internal/protocol"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) writePump(ctx context.Context, cid domain.ConnID, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.Opts.PingPeriod)
	defer func() {
		ticker.Stop()
		// Unblocks the reader if the writer dies first.
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Str("sid", string(cid)).Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteControl(websocket.CloseMessage, []byte{}, time.Now().Add(ctl.Opts.WriteWait))
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.Opts.WriteWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Str("sid", string(cid)).Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(ctl.Opts.WriteWait)); err != nil {
				log.Debug().Err(err).Str("module", "signal").Str("sid", string(cid)).Msg("writePump ping")
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, cid domain.ConnID, c *WsSignalConn, kill func()) {
	defer func() {
		log.Info().Str("module", "signal").Str("sid", string(cid)).Msg("readPump closing")
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		ctl.Orch.Disconnect(cleanupCtx, cid)
		kill()
	}()

	c.conn.SetReadLimit(ctl.Opts.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(ctl.Opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(ctl.Opts.PongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("module", "signal").Str("sid", string(cid)).Msg("readPump read error")
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
		ctl.handleSignal(ctx, cid, data)
	}
}

func (ctl *SignalWSController) handleSignal(ctx context.Context, cid domain.ConnID, data []byte) {
	var env protocol.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		ctl.sendError(cid, "", fmt.Errorf("bad json: %w", domain.ErrMalformed))
		return
	}

	switch env.Type {
	case protocol.TypeJoinRoom:
		ctl.handleJoin(ctx, cid, data)
	case protocol.TypeLeaveRoom:
		ctl.handleLeave(ctx, cid)
	case protocol.TypeSendMessage:
		ctl.handleSendMessage(ctx, cid, data)
	case protocol.TypeStartSpeak:
		ctl.handleSpeaking(cid, true)
	case protocol.TypeStopSpeak:
		ctl.handleSpeaking(cid, false)
	case protocol.TypeToggleMute:
		ctl.handleToggleMute(cid, data)
	case protocol.TypeOffer, protocol.TypeAnswer, protocol.TypeICECandidate:
		ctl.handleRelay(cid, data)
	case protocol.TypePing:
		ctl.handlePing(cid)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown signal")
		ctl.sendError(cid, env.Type, fmt.Errorf("unknown event %q: %w", env.Type, domain.ErrMalformed))
	}
}

func (ctl *SignalWSController) sendJSON(cid domain.ConnID, v any) {
	ctl.Orch.Reply(cid, v)
}

func (ctl *SignalWSController) sendError(cid domain.ConnID, event string, err error) {
	ctl.sendJSON(cid, protocol.ErrorOf(event, err))
}

func decode[T any](data []byte) (T, error) {
	var p T
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("%w: %v", domain.ErrMalformed, err)
	}
	return p, nil
}
