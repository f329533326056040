package ledger

import (
	"crypto/ecdsa"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	hdwallet "github.com/miguelmota/go-ethereum-hdwallet"
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/pkg/errors"
)

// DerivationPathFormat is the BIP-44 Ethereum path ganache and truffle use.
const DerivationPathFormat = "m/44'/60'/0'/0/%d"

// Wallet holds the signing keys of the oracle identities. Sends from the same
// address are serialised so concurrent responses do not race on the nonce.
type Wallet struct {
	keys  map[common.Address]*ecdsa.PrivateKey
	order []common.Address
	locks cmap.ConcurrentMap[string, *sync.Mutex]
}

// NewWalletFromMnemonic derives count consecutive accounts starting at
// account index first.
func NewWalletFromMnemonic(mnemonic string, first uint32, count int) (*Wallet, error) {
	if count < 1 {
		return nil, fmt.Errorf("account count must be positive: %d", count)
	}

	hw, err := hdwallet.NewFromMnemonic(mnemonic)
	if err != nil {
		return nil, errors.Wrap(err, "open hd wallet")
	}

	keys := make([]*ecdsa.PrivateKey, 0, count)
	for i := 0; i < count; i++ {
		path, err := hdwallet.ParseDerivationPath(fmt.Sprintf(DerivationPathFormat, first+uint32(i)))
		if err != nil {
			return nil, errors.Wrap(err, "parse derivation path")
		}

		account, err := hw.Derive(path, false)
		if err != nil {
			return nil, errors.Wrapf(err, "derive account %d", first+uint32(i))
		}

		key, err := hw.PrivateKey(account)
		if err != nil {
			return nil, errors.Wrapf(err, "private key of account %d", first+uint32(i))
		}

		keys = append(keys, key)
	}

	return NewWallet(keys...), nil
}

func NewWallet(keys ...*ecdsa.PrivateKey) *Wallet {
	w := &Wallet{
		keys:  make(map[common.Address]*ecdsa.PrivateKey, len(keys)),
		order: make([]common.Address, 0, len(keys)),
		locks: cmap.New[*sync.Mutex](),
	}

	for _, key := range keys {
		addr := crypto.PubkeyToAddress(key.PublicKey)
		if _, ok := w.keys[addr]; ok {
			continue
		}
		w.keys[addr] = key
		w.order = append(w.order, addr)
	}

	return w
}

// Addresses returns the wallet addresses in derivation order.
func (w *Wallet) Addresses() []common.Address {
	out := make([]common.Address, len(w.order))
	copy(out, w.order)

	return out
}

func (w *Wallet) Key(addr common.Address) (*ecdsa.PrivateKey, error) {
	key, ok := w.keys[addr]
	if !ok {
		return nil, fmt.Errorf("no key for address %s", addr.Hex())
	}

	return key, nil
}

func (w *Wallet) lock(addr common.Address) func() {
	w.locks.SetIfAbsent(addr.Hex(), &sync.Mutex{})
	mu, _ := w.locks.Get(addr.Hex())
	mu.Lock()

	return mu.Unlock
}
