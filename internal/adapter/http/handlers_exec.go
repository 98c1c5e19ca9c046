package adapthttp

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"family6/internal/app"
	"family6/internal/domain"
)

// execRequest is the union of fields across all actions on the single
// action-tagged endpoint.
type execRequest struct {
	Action string `json:"action"`

	Email       string  `json:"email"`
	Password    string  `json:"password"`
	NewPassword string  `json:"newPassword"`
	Username    *string `json:"username"`

	// Token carries the session token for authenticated actions, the reset
	// token for resetPassword.
	Token string `json:"token"`

	SessionID   string `json:"sessionId"`
	ChatInput   string `json:"chatInput"`
	MessageType string `json:"messageType"`
	Content     string `json:"content"`
}

// handleExec serves the single action endpoint: POST carries an
// action-tagged JSON body, GET serves the email confirmation link.
func (s *Server) handleExec(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleConfirmLink(w, r)
	case http.MethodPost:
		s.handleAction(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	var req execRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body"))
		return
	}

	ctx := r.Context()
	switch req.Action {
	case "signup":
		username := ""
		if req.Username != nil {
			username = *req.Username
		}
		user, err := s.auth.Signup(ctx, req.Email, req.Password, username)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"message": "Signup successful. Check your email to confirm your account.",
			"user":    user,
		})

	case "login":
		res, err := s.auth.Login(ctx, req.Email, req.Password)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, res)

	case "validateSession":
		res, err := s.auth.ValidateSession(ctx, req.Token)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"valid":     true,
			"user":      res.User,
			"expiresAt": res.ExpiresAt,
		})

	case "logout":
		if err := s.auth.Logout(ctx, req.Token); err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"message": "Logged out"})

	case "requestReset":
		msg, err := s.auth.RequestReset(ctx, req.Email)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"message": msg})

	case "resetPassword":
		if err := s.auth.ResetPassword(ctx, req.Token, req.NewPassword); err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"message": "Password updated"})

	case "updatePassword":
		if err := s.auth.UpdatePassword(ctx, req.Token, req.NewPassword); err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"message": "Password updated"})

	case "updateProfile":
		user, err := s.auth.UpdateProfile(ctx, req.Token, req.Username)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"user": user})

	case "getUser":
		user, err := s.auth.GetUser(ctx, req.Token)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"user": user})

	case "sendMessage":
		s.handleSendMessage(w, r, &req)

	case "saveChatMessage":
		msg, err := s.chat.SaveMessage(ctx, req.Token, req.SessionID, domain.MessageType(req.MessageType), req.Content)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"id":        msg.ID,
			"sessionId": msg.SessionID,
			"createdAt": msg.CreatedAt,
		})

	case "getChatHistory":
		convs, err := s.chat.GetHistory(ctx, req.Token)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"conversations": convs})

	case "getChatStats":
		stats, err := s.chat.GetStats(ctx, req.Token)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"stats": stats})

	default:
		writeError(w, http.StatusBadRequest, fmt.Errorf("unknown action: %q", req.Action))
	}
}

// handleSendMessage relays a chat message to the external webhook. When the
// request carries a valid session the exchange is persisted to chat history;
// anonymous visitors can still chat, unpersisted.
func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request, req *execRequest) {
	ctx := r.Context()

	userID := ""
	userEmail := ""
	authenticated := false
	if req.Token != "" {
		if res, err := s.auth.ValidateSession(ctx, req.Token); err == nil {
			userID = res.User.Email
			userEmail = res.User.Email
			authenticated = true
		}
	}

	reply, err := s.relay.SendMessage(ctx, req.SessionID, userID, userEmail, req.ChatInput)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	if authenticated {
		if _, err := s.chat.SaveMessage(ctx, req.Token, reply.SessionID, domain.MessageHuman, req.ChatInput); err != nil {
			s.log.Error("save chat message", "sessionId", reply.SessionID, "err", err)
		}
		if _, err := s.chat.SaveMessage(ctx, req.Token, reply.SessionID, domain.MessageAI, reply.Reply); err != nil {
			s.log.Error("save chat message", "sessionId", reply.SessionID, "err", err)
		}
	}

	writeJSON(w, http.StatusOK, reply)
}

// handleConfirmLink consumes an email confirmation link and redirects the
// browser to the confirmation page with the outcome in the query string.
func (s *Server) handleConfirmLink(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("action") != "confirmEmail" {
		http.NotFound(w, r)
		return
	}

	status, err := s.auth.ConfirmEmail(r.Context(), q.Get("token"))
	if err != nil {
		s.log.Error("confirm email", "err", err)
		status = app.ConfirmInvalidToken
	}

	target := s.confirmPageURL
	switch status {
	case app.ConfirmSuccess:
		target += "?success=true"
	default:
		target += "?error=" + url.QueryEscape(string(status))
	}
	http.Redirect(w, r, target, http.StatusFound)
}
