package config

import (
	"os"
	"path/filepath"

	"github.com/fernet/fernet-go"
	"gopkg.in/yaml.v3"
)

// API tokens are stored per target ("production" or "sandbox") in a YAML
// file under the config directory, encrypted with a fernet key that lives
// alongside it. The key file is created on first use.

const keyFileName = "key.fernet"
const tokenFileName = "tokens.yaml"

// loads the fernet key used to encrypt tokens at rest, generating a new one
// the first time around
func encryptionKey() (*fernet.Key, error) {
	keyPath := filepath.Join(Paths.ConfigDirectory, keyFileName)
	encoded, err := os.ReadFile(keyPath)
	if os.IsNotExist(err) {
		var key fernet.Key
		if err := key.Generate(); err != nil {
			return nil, err
		}
		if err := os.WriteFile(keyPath, []byte(key.Encode()), 0600); err != nil {
			return nil, err
		}
		return &key, nil
	} else if err != nil {
		return nil, err
	}
	return fernet.DecodeKey(string(encoded))
}

// reads the token file, yielding an empty table when there isn't one yet
func readTokenFile() (map[string]string, error) {
	data, err := os.ReadFile(filepath.Join(Paths.ConfigDirectory, tokenFileName))
	if os.IsNotExist(err) {
		return make(map[string]string), nil
	} else if err != nil {
		return nil, err
	}
	tokens := make(map[string]string)
	if err := yaml.Unmarshal(data, &tokens); err != nil {
		return nil, err
	}
	return tokens, nil
}

// SaveToken stores the API token for the given target ("production" or
// "sandbox"), encrypted at rest.
func SaveToken(target, token string) error {
	key, err := encryptionKey()
	if err != nil {
		return err
	}
	encrypted, err := fernet.EncryptAndSign([]byte(token), key)
	if err != nil {
		return err
	}
	tokens, err := readTokenFile()
	if err != nil {
		return err
	}
	tokens[target] = string(encrypted)
	data, err := yaml.Marshal(tokens)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(Paths.ConfigDirectory, tokenFileName),
		data, 0600)
}

// Token retrieves the stored API token for the given target. A target with
// no stored token (or a token that doesn't decrypt with the current key) is
// a NoTokenError.
func Token(target string) (string, error) {
	tokens, err := readTokenFile()
	if err != nil {
		return "", err
	}
	encrypted, found := tokens[target]
	if !found {
		return "", &NoTokenError{Target: target}
	}
	key, err := encryptionKey()
	if err != nil {
		return "", err
	}
	// stored tokens don't expire, so no TTL is enforced here
	token := fernet.VerifyAndDecrypt([]byte(encrypted), 0, []*fernet.Key{key})
	if token == nil {
		return "", &NoTokenError{Target: target}
	}
	return string(token), nil
}

// RemoveToken forgets the stored API token for the given target.
func RemoveToken(target string) error {
	tokens, err := readTokenFile()
	if err != nil {
		return err
	}
	delete(tokens, target)
	data, err := yaml.Marshal(tokens)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(Paths.ConfigDirectory, tokenFileName),
		data, 0600)
}
