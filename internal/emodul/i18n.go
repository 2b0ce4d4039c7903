package emodul

import (
	"context"
	"fmt"
	"strconv"
)

const pathLanguageStrings = "api/v1/i18n/en"

// LanguageStrings maps vendor text ids to English display strings.
type LanguageStrings map[string]string

// Lookup returns the text for id; a missing id is not an error.
func (l LanguageStrings) Lookup(id int) (string, bool) {
	s, ok := l[strconv.Itoa(id)]
	return s, ok
}

type languageResponse struct {
	Data map[string]string `json:"data"`
}

// RefreshLanguageStrings downloads the English text table and installs it in
// one step. On failure the previous table (possibly empty) stays in effect
// and is returned together with the error, leaving the caller to decide
// whether stale labels are acceptable.
func (c *Client) RefreshLanguageStrings(ctx context.Context) (LanguageStrings, error) {
	c.logger.Debug("Pulling emodul language strings")

	var resp languageResponse
	if err := c.get(ctx, pathLanguageStrings, buildHeaders("", ""), &resp); err != nil {
		return c.LanguageStrings(), fmt.Errorf("language strings: %w", err)
	}
	if resp.Data == nil {
		return c.LanguageStrings(), fmt.Errorf("language strings: %w", &DecodeError{Path: pathLanguageStrings, Err: fmt.Errorf("missing data object")})
	}

	table := make(LanguageStrings, len(resp.Data))
	for k, v := range resp.Data {
		table[k] = v
	}
	c.langMu.Lock()
	c.language = table
	c.langMu.Unlock()

	c.observer.LanguageStringsLoaded(len(table))
	c.logger.WithField("strings", len(table)).Debug("Installed emodul language strings")
	return table, nil
}

// LanguageStrings returns the table currently in effect. It must not be modified.
func (c *Client) LanguageStrings() LanguageStrings {
	c.langMu.RLock()
	defer c.langMu.RUnlock()
	return c.language
}
