package credential

import "github.com/zalando/go-keyring"

// keyringService namespaces this client's secrets in the OS keyring.
const keyringService = "papersync"

// Secrets is the minimal secret-holder contract the store needs. The
// zalando keyring satisfies it on desktop platforms; tests use a map.
type Secrets interface {
	Set(account, value string) error
	Get(account string) (string, error)
	Delete(account string) error
}

type systemKeyring struct{}

// SystemKeyring returns the OS keyring backend. Callers should pass nil to
// NewStore instead on headless systems where no keyring daemon runs.
func SystemKeyring() Secrets {
	return systemKeyring{}
}

func (systemKeyring) Set(account, value string) error {
	return keyring.Set(keyringService, account, value)
}

func (systemKeyring) Get(account string) (string, error) {
	return keyring.Get(keyringService, account)
}

func (systemKeyring) Delete(account string) error {
	return keyring.Delete(keyringService, account)
}
