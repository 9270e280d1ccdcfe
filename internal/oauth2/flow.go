package oauth2

import (
	"context"
	"fmt"
)

// FlowHandler drives the authorization-code flow of a single provider for
// browser logins. The caller keeps state and verifier between the two steps,
// typically in the session.
type FlowHandler struct {
	provider Provider
}

func NewFlowHandler(provider Provider) *FlowHandler {
	return &FlowHandler{provider: provider}
}

func (h *FlowHandler) Provider() Provider {
	return h.provider
}

// StartWebFlow returns the URL to send the browser to, plus the state and
// code verifier needed to complete the flow.
func (h *FlowHandler) StartWebFlow(redirectURL string) (authURL, state, codeVerifier string, err error) {
	authURL, codeVerifier, state, err = h.provider.BuildAuthURL(redirectURL)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to build auth URL: %w", err)
	}
	return authURL, state, codeVerifier, nil
}

// CallbackParams are the query parameters the provider redirects back with.
type CallbackParams struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
}

// CompleteWebFlow checks the callback against the expected state, exchanges
// the code and returns the signed-in profile.
func (h *FlowHandler) CompleteWebFlow(
	ctx context.Context,
	cb CallbackParams,
	codeVerifier, redirectURL, expectedState string,
) (*Profile, error) {
	if cb.Error != "" {
		if cb.Error == "access_denied" {
			return nil, ErrAuthorizationDenied
		}
		return nil, fmt.Errorf("authorization error: %s - %s", cb.Error, cb.ErrorDescription)
	}
	if expectedState == "" || cb.State != expectedState {
		return nil, ErrStateMismatch
	}
	if cb.Code == "" {
		return nil, ErrMissingCode
	}

	tokenResp, err := h.provider.ExchangeCode(ctx, cb.Code, codeVerifier, redirectURL)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}

	profile, err := h.provider.GetProfile(ctx, tokenResp.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return profile, nil
}
