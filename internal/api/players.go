package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/rbxmod/banlist/internal/server"
	"github.com/rbxmod/banlist/pkg/banlist"
	"github.com/rbxmod/banlist/pkg/events"
)

// publishTimeout bounds handing an event to the publisher after a write
// has committed.
const publishTimeout = 5 * time.Second

type BanPlayerRequest struct {
	UserID      json.RawMessage `json:"userId"`
	Username    string          `json:"username"`
	DisplayName string          `json:"displayName"`
}

func (req *BanPlayerRequest) Validate() error {
	req.Username = strings.TrimSpace(req.Username)
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	return validation.ValidateStruct(req,
		validation.Field(&req.UserID, validation.Required, validation.By(validUserID)),
		validation.Field(&req.Username, validation.Required),
		validation.Field(&req.DisplayName, validation.Required),
	)
}

// UserRequest is the body of unban and check requests.
type UserRequest struct {
	UserID json.RawMessage `json:"userId"`

	// Username is only logged.
	Username string `json:"username,omitempty"`
}

func (req *BanPlayerRequest) rawUserID() json.RawMessage { return req.UserID }

func (req *UserRequest) rawUserID() json.RawMessage { return req.UserID }

func (req *UserRequest) Validate() error {
	return validation.ValidateStruct(req,
		validation.Field(&req.UserID, validation.Required, validation.By(validUserID)),
	)
}

func validUserID(value any) error {
	raw, _ := value.(json.RawMessage)
	_, err := banlist.NormalizeUserID(raw)
	return err
}

type BanListResponse struct {
	Status      string                       `json:"status"`
	BannedUsers map[string]banlist.BanRecord `json:"banned_users"`
}

type CheckBanResponse struct {
	Status   string             `json:"status"`
	UserID   string             `json:"userId"`
	IsBanned bool               `json:"is_banned"`
	UserData *banlist.BanRecord `json:"user_data"`
}

func logArgs(r *http.Request, args ...any) []any {
	return append([]any{
		"method", r.Method,
		"path", r.URL.Path,
		"request_id", RequestID(r.Context()),
		"remote_addr", r.RemoteAddr,
	}, args...)
}

type userRequest interface {
	validation.Validatable
	rawUserID() json.RawMessage
}

// decodeAndValidate decodes the body into req and validates it, writing a
// 400 response on failure. It returns the normalized user ID.
func decodeAndValidate(
	srv server.Server,
	w http.ResponseWriter,
	r *http.Request,
	req userRequest,
) (string, bool) {
	if err := decodeRequest(w, r, req); err != nil {
		srv.Logger.Warn("error decoding request", logArgs(r, "error", err)...)
		respondError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	if err := req.Validate(); err != nil {
		srv.Logger.Warn("invalid request", logArgs(r, "error", err)...)
		respondError(w, http.StatusBadRequest, err.Error())
		return "", false
	}

	userID, _ := banlist.NormalizeUserID(req.rawUserID())
	return userID, true
}

// BanPlayerHandler bans a player. NewHandler only routes POST requests here.
func BanPlayerHandler(srv server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := &BanPlayerRequest{}
		userID, ok := decodeAndValidate(srv, w, r, req)
		if !ok {
			return
		}

		outcome, err := srv.Syncer.Ban(r.Context(), userID, banlist.BanRecord{
			Username:    req.Username,
			DisplayName: req.DisplayName,
		})
		if err != nil {
			srv.Logger.Error("error banning player",
				logArgs(r, "error", err, "user_id", userID)...)
			respondSyncError(w, err)
			return
		}

		if !outcome.Changed {
			srv.Logger.Info("player already banned",
				logArgs(r, "user_id", userID, "username", outcome.Record.Username)...)
			respondMessage(w, "Player is already banned.")
			return
		}

		srv.Logger.Info("banned player",
			logArgs(r,
				"user_id", userID,
				"username", req.Username,
				"display_name", req.DisplayName,
				"revision", outcome.Revision,
			)...)
		publish(srv, r, events.TypePlayerBanned, userID, outcome)
		respondMessage(w, "Player banned.")
	})
}

// UnbanPlayerHandler lifts a ban. Unbanning a player who is not banned
// succeeds without writing.
func UnbanPlayerHandler(srv server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := &UserRequest{}
		userID, ok := decodeAndValidate(srv, w, r, req)
		if !ok {
			return
		}

		outcome, err := srv.Syncer.Unban(r.Context(), userID)
		if err != nil {
			srv.Logger.Error("error unbanning player",
				logArgs(r, "error", err, "user_id", userID)...)
			respondSyncError(w, err)
			return
		}

		if !outcome.Changed {
			srv.Logger.Info("player was not banned",
				logArgs(r, "user_id", userID, "username", req.Username)...)
			respondMessage(w, "Player was not banned.")
			return
		}

		srv.Logger.Info("unbanned player",
			logArgs(r,
				"user_id", userID,
				"username", outcome.Record.Username,
				"revision", outcome.Revision,
			)...)
		publish(srv, r, events.TypePlayerUnbanned, userID, outcome)
		respondMessage(w, "Player unbanned.")
	})
}

// BanListHandler returns every banned player.
func BanListHandler(srv server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handle, err := srv.Syncer.Fetch(r.Context())
		if err != nil {
			srv.Logger.Error("error fetching ban list", logArgs(r, "error", err)...)
			respondServerError(w, err)
			return
		}

		srv.Logger.Debug("listed bans", logArgs(r, "count", handle.Registry.Len())...)
		respondJSON(w, http.StatusOK, BanListResponse{
			Status:      statusSuccess,
			BannedUsers: handle.Registry.List(),
		})
	})
}

// CheckBanHandler reports whether a player is banned.
func CheckBanHandler(srv server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := &UserRequest{}
		userID, ok := decodeAndValidate(srv, w, r, req)
		if !ok {
			return
		}

		handle, err := srv.Syncer.Fetch(r.Context())
		if err != nil {
			srv.Logger.Error("error fetching ban list",
				logArgs(r, "error", err, "user_id", userID)...)
			respondServerError(w, err)
			return
		}

		resp := CheckBanResponse{Status: statusSuccess, UserID: userID}
		if record, ok := handle.Registry.Lookup(userID); ok {
			resp.IsBanned = true
			resp.UserData = &record
		}

		srv.Logger.Debug("checked ban",
			logArgs(r, "user_id", userID, "is_banned", resp.IsBanned)...)
		respondJSON(w, http.StatusOK, resp)
	})
}

// publish sends a change event. The write has already committed, so
// delivery failures are logged and do not affect the response.
func publish(srv server.Server, r *http.Request, typ events.Type, userID string, outcome *banlist.Outcome) {
	if srv.Events == nil {
		return
	}

	event := events.New(typ, userID)
	event.Revision = outcome.Revision
	event.RequestID = RequestID(r.Context())
	if outcome.Record != nil {
		event.Username = outcome.Record.Username
		event.DisplayName = outcome.Record.DisplayName
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), publishTimeout)
	defer cancel()

	if err := srv.Events.Publish(ctx, event); err != nil {
		srv.Logger.Error("error publishing ban event",
			logArgs(r, "error", err, "event_id", event.ID, "type", typ)...)
	}
}
