package emodul

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"
)

const (
	pathLogin           = "frontend/login"
	pathAuthentication  = "api/v1/authentication"
	pathIsAuthenticated = "frontend/is_authenticated"
)

type credentials struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	RememberMe bool   `json:"rememberMe"`
	LanguageID string `json:"languageId"`
	Remote     bool   `json:"remote"`
}

type loginResponse struct {
	Authenticated       bool   `json:"authenticated"`
	SelectedModuleHash  string `json:"selectedModuleHash"`
	SelectedModuleIndex int    `json:"selectedModuleIndex"`
}

type tokenResponse struct {
	Authenticated bool       `json:"authenticated"`
	UserID        flexString `json:"user_id"`
	Token         string     `json:"token"`
}

// flexString accepts a JSON string or number; the API sends user ids as numbers.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// Authenticate runs the two-step login: a session-cookie login against the
// web frontend, then bearer token issuance. It reports false without error
// when the vendor rejects the credentials, and false with the cause when a
// request fails. A failed attempt always leaves the client unauthenticated.
func (c *Client) Authenticate(ctx context.Context, username, password string) (bool, error) {
	body := credentials{
		Username:   username,
		Password:   password,
		RememberMe: false,
		LanguageID: "en",
		Remote:     false,
	}
	header := buildHeaders("", loginReferer())

	c.logger.WithField("path", pathLogin).Info("Authenticating against emodul")

	var login loginResponse
	if err := c.post(ctx, pathLogin, header, body, &login); err != nil {
		c.session.reset()
		c.logger.WithError(err).Error("emodul login failed")
		return false, fmt.Errorf("login: %w", err)
	}
	if !login.Authenticated {
		c.session.reset()
		c.logger.Warn("emodul login rejected the credentials")
		return false, nil
	}
	c.session.selectModule(login.SelectedModuleIndex, login.SelectedModuleHash)

	c.logger.WithField("path", pathAuthentication).Info("Requesting emodul bearer token")

	var tok tokenResponse
	if err := c.post(ctx, pathAuthentication, header, body, &tok); err != nil {
		c.session.reset()
		c.logger.WithError(err).Error("emodul token request failed")
		return false, fmt.Errorf("token: %w", err)
	}
	if !tok.Authenticated || tok.Token == "" || tok.UserID == "" {
		c.session.reset()
		c.logger.Warn("emodul token request was not authenticated")
		return false, nil
	}
	c.session.establish(string(tok.UserID), tok.Token)

	c.logger.WithFields(logrus.Fields{
		"user_id":               string(tok.UserID),
		"selected_module_index": login.SelectedModuleIndex,
	}).Info("emodul session established")
	return true, nil
}

// IsAuthenticated asks the server whether the current bearer session is
// still valid and returns its raw answer.
func (c *Client) IsAuthenticated(ctx context.Context) (json.RawMessage, error) {
	st := c.session.snapshot()
	if !st.Authenticated {
		c.logger.Error("emodul session is not authenticated")
		return nil, ErrUnauthorized
	}
	c.logger.WithField("user_id", st.UserID).Debug("Checking emodul session")

	var out json.RawMessage
	if err := c.get(ctx, pathIsAuthenticated, buildHeaders(st.Token, ""), &out); err != nil {
		return nil, err
	}
	return out, nil
}
