package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/go-viper/mapstructure/v2"
	"github.com/goccy/go-yaml"
	"github.com/swaggest/jsonschema-go"
)

// Secret defines the configuration for credentials used to publish build
// artifacts.
//
// Each secret is stored as a map of key-value pairs, where the keys and values are strings. Secret type is also declared in the config.
// Secrets may also refer to environment variables using the ${VAR_NAME} syntax. For example:
//
// my_secret:
//
//	type: aws_auth
//	access_key_id: ${AWS_ACCESS_KEY_ID}
//	secret_access_key: ${AWS_SECRET_ACCESS_KEY}
//	session_token: ${AWS_SESSION_TOKEN}
//
// In this case, the actual values will be read from the environment variables AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY,
// and AWS_SESSION_TOKEN. Variables may come from the process environment or from the dotenv files loaded at startup.
//
// Currently the following secret types are supported:
//
//   - "aws_auth" for AWS authentication. Values for keys "access_key_id", "secret_access_key", and optional "session_token" are expected.
//   - "azure_auth" for Azure authentication. Values for keys "account_name" and "account_key" are expected.
//   - "gcp_auth" for Google Cloud authentication. Value for a key "api_key" or "credentials" is expected.
type Secret struct {
	Name  string         `json:"-"`
	Value map[string]any `json:"-"`
}

func (s *Secret) Ref() *SecretRef {
	return &SecretRef{Name: s.Name, value: s}
}

func (*Secret) PrepareJSONSchema(schema *jsonschema.Schema) error {
	schema.Type = nil
	schema.AddType(jsonschema.Object)
	return nil
}

func (s *Secret) MarshalYAML() (any, error) {
	if len(s.Value) == 0 {
		return map[string]any{}, nil
	}
	return s.Value, nil
}

func (s *Secret) MarshalJSON() ([]byte, error) {
	v, err := s.MarshalYAML()
	if err != nil {
		return nil, err
	}

	return json.Marshal(v)
}

func (s *Secret) UnmarshalYAML(bs []byte) error {
	if err := yaml.Unmarshal(bs, &s.Value); err != nil {
		return fmt.Errorf("expected mapping node: %w", err)
	}
	return nil
}

func (s *Secret) UnmarshalJSON(bs []byte) error {
	return json.Unmarshal(bs, &s.Value)
}

// get retrieves the values from any external source as necessary.
// NB(sr): "external sources" (plural) is aspirational: we support env vars only, so far.
func (s *Secret) get() (map[string]any, error) {
	value := make(map[string]any, len(s.Value))

	for k, v := range s.Value {
		switch v := v.(type) {
		case string:
			value[k] = os.ExpandEnv(v)
		default: // Keep non-string values as is
			value[k] = v
		}
	}

	return value, nil
}

func (s *Secret) Typed(context.Context) (any, error) {
	m, err := s.get() // Ensure values are resolved
	if err != nil {
		return nil, err
	}

	if len(m) == 0 {
		return nil, fmt.Errorf("secret %q is not configured", s.Name)
	}

	switch m["type"] {
	case "aws_auth":
		var value SecretAWS

		if err := decode(m, &value); err != nil {
			return nil, err
		} else if value.AccessKeyID == "" || value.SecretAccessKey == "" {
			return nil, errors.New("missing access_key_id or secret_access_key in AWS secret")
		}

		return value, nil

	case "azure_auth":
		var value SecretAzure

		if err := decode(m, &value); err != nil {
			return nil, err
		} else if value.AccountName == "" || value.AccountKey == "" {
			return nil, errors.New("missing account_name or account_key in Azure secret")
		}

		return value, nil

	case "gcp_auth":
		var value SecretGCP

		if err := decode(m, &value); err != nil {
			return nil, err
		} else if value.APIKey == "" && value.Credentials == "" {
			return nil, errors.New("missing api_key or credentials in GCP secret")
		}

		return value, nil

	default:
		return nil, fmt.Errorf("unknown secret type %q", s.Value["type"])
	}
}

type SecretAWS struct {
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
	SessionToken    string `json:"session_token"`
}

type SecretGCP struct {
	APIKey      string `json:"api_key"`
	Credentials string `json:"credentials"` // Credentials file as JSON.
}

type SecretAzure struct {
	AccountName string `json:"account_name"`
	AccountKey  string `json:"account_key"`
}

// we use this one so we don't need duplicate tags on every struct
func decode(input any, output any) error {
	config := &mapstructure.DecoderConfig{
		TagName:  "json",
		Metadata: nil,
		Result:   output,
	}

	decoder, err := mapstructure.NewDecoder(config)
	if err != nil {
		return err
	}

	return decoder.Decode(input)
}
