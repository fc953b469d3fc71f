package authplugin

import (
	"context"
	"fmt"

	"meridian-hq/oagw/pkg/credentials"
)

// apiKeyPlugin injects a stored secret into the outbound request head.
//
// Config keys:
//
//	credential_id  (required) credential store id to read
//	header         header to write, default "Authorization"
//	scheme         "Bearer" (default) prefixes the secret, "Raw" does not
//	query_param    when set, the secret goes into this query parameter
//	               instead of a header
//
// The secret is read from the store at apply time, not at construction,
// so credential rotation takes effect on the next request.
type apiKeyPlugin struct {
	credentialID string
	header       string
	scheme       string
	queryParam   string
	creds        credentials.Reader
}

func newAPIKey(config map[string]any, creds credentials.Reader) (Plugin, error) {
	credentialID, _ := config["credential_id"].(string)
	if credentialID == "" {
		return nil, fmt.Errorf("config key credential_id is required")
	}

	header, _ := config["header"].(string)
	if header == "" {
		header = "Authorization"
	}

	scheme, _ := config["scheme"].(string)
	switch scheme {
	case "":
		scheme = "Bearer"
	case "Bearer", "Raw":
	default:
		return nil, fmt.Errorf("config key scheme must be Bearer or Raw, got %q", scheme)
	}

	queryParam, _ := config["query_param"].(string)

	return &apiKeyPlugin{
		credentialID: credentialID,
		header:       header,
		scheme:       scheme,
		queryParam:   queryParam,
		creds:        creds,
	}, nil
}

// Name returns the registered plugin name.
func (p *apiKeyPlugin) Name() string { return "api-key" }

// Apply reads the secret and writes it to the configured header or
// query parameter.
func (p *apiKeyPlugin) Apply(_ context.Context, head *RequestHead) error {
	cred, err := p.creds.Get(p.credentialID)
	if err != nil {
		return err
	}

	value := string(cred.Secret)
	if p.scheme == "Bearer" {
		value = "Bearer " + value
	}

	if p.queryParam != "" {
		q := head.URL.Query()
		q.Set(p.queryParam, value)
		head.URL.RawQuery = q.Encode()
		return nil
	}

	head.Header.Set(p.header, value)
	return nil
}
