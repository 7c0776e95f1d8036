package winckit

import (
	"crypto/rsa"
	"fmt"
	"math/big"
)

// PublicKey rebuilds an *rsa.PublicKey from the decoded modulus and exponent.
func (k *RSAPublic) PublicKey() (*rsa.PublicKey, error) {
	n := k.N.Int()
	e, err := exponent(k.E)
	if err != nil {
		return nil, err
	}
	if n.Sign() == 0 {
		return nil, fmt.Errorf("%w: zero RSA modulus", ErrKeyMaterialInvalid)
	}
	return &rsa.PublicKey{N: n, E: e}, nil
}

// PublicKey returns the public half of the record.
func (k *RSAPrivateKeyRecord) PublicKey() (*rsa.PublicKey, error) {
	return (&RSAPublic{N: k.N, E: k.E}).PublicKey()
}

// PrivateKey rebuilds and validates an *rsa.PrivateKey from the record. The
// CRT values are recomputed from the primes; the stored dp, dq and qinv are
// kept on the record for inspection only.
func (k *RSAPrivateKeyRecord) PrivateKey() (*rsa.PrivateKey, error) {
	pub, err := k.PublicKey()
	if err != nil {
		return nil, err
	}
	key := &rsa.PrivateKey{
		PublicKey: *pub,
		D:         k.D.Int(),
		Primes:    []*big.Int{k.P.Int(), k.Q.Int()},
	}
	if err := key.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyMaterialInvalid, err)
	}
	key.Precompute()
	return key, nil
}

func exponent(m Magnitude) (int, error) {
	e := m.Int()
	if e.BitLen() > 31 || e.Int64() < 2 {
		return 0, fmt.Errorf("%w: RSA exponent %s out of range", ErrKeyMaterialInvalid, e)
	}
	return int(e.Int64()), nil
}
