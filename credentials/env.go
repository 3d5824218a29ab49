package credentials

import (
	"context"
	"os"

	"github.com/joho/godotenv"
)

const (
	envAccessKeyID     = "AWS_ACCESS_KEY_ID"
	envSecretAccessKey = "AWS_SECRET_ACCESS_KEY"
	envSessionToken    = "AWS_SESSION_TOKEN"
	envProviderName    = "Environment"
)

// LookupFunc reads a variable from an environment.
type LookupFunc func(key string) (string, bool)

// EnvProvider reads credentials from environment variables. When EnvFile is
// set, variables in that file are used for anything the lookup does not have.
type EnvProvider struct {
	Lookup  LookupFunc
	EnvFile string
}

// NewEnvProvider reads the process environment.
func NewEnvProvider() *EnvProvider {
	return &EnvProvider{Lookup: os.LookupEnv}
}

// ProvideCredentials loads the key pair. A missing access key or secret is
// CredentialsNotLoaded so that a chain can move on.
func (p *EnvProvider) ProvideCredentials(ctx context.Context) (Credentials, error) {
	if err := ctx.Err(); err != nil {
		return Credentials{}, &Error{Kind: ProviderTimedOut, Provider: envProviderName, Err: err}
	}
	lookup, err := p.lookup()
	if err != nil {
		return Credentials{}, err
	}

	accessKey, _ := lookup(envAccessKeyID)
	if accessKey == "" {
		return Credentials{}, NotLoaded(envProviderName, envAccessKeyID+" is not set")
	}
	secret, _ := lookup(envSecretAccessKey)
	if secret == "" {
		return Credentials{}, NotLoaded(envProviderName, envSecretAccessKey+" is not set")
	}
	token, _ := lookup(envSessionToken)

	return Credentials{
		AccessKeyID:     accessKey,
		SecretAccessKey: secret,
		SessionToken:    token,
		ProviderName:    envProviderName,
	}, nil
}

func (p *EnvProvider) lookup() (LookupFunc, error) {
	base := p.Lookup
	if base == nil {
		base = os.LookupEnv
	}
	if p.EnvFile == "" {
		return base, nil
	}
	fileVars, err := godotenv.Read(p.EnvFile)
	if err != nil {
		if os.IsNotExist(err) {
			return base, nil
		}
		return nil, &Error{Kind: InvalidConfiguration, Provider: envProviderName, Message: "read " + p.EnvFile, Err: err}
	}
	return func(key string) (string, bool) {
		if v, ok := base(key); ok && v != "" {
			return v, true
		}
		v, ok := fileVars[key]
		return v, ok
	}, nil
}
