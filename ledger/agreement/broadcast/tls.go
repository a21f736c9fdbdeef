package broadcast

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"math/big"
	"net"
	"time"

	"github.com/pkg/errors"
)

// how long a generated node certificate can be pinned by peers
const certValidity = 365 * 24 * time.Hour

// ParseCertificate parses a pem encoded node certificate and checks that peers
// can pin it: it must be its own CA, valid for the pinned name and not expired.
func ParseCertificate(pemd []byte) (c *x509.Certificate, err error) {
	block, _ := pem.Decode(pemd)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, errors.New("no pem encoded certificate in provided data")
	}

	c, err = x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse provided certificate")
	}

	switch now := time.Now(); {
	case !c.IsCA:
		return nil, errors.Wrap(ErrNotPinnable, "certificate is not its own CA")
	case c.VerifyHostname(pinnedName) != nil:
		return nil, errors.Wrapf(ErrNotPinnable, "certificate is not valid for '%s'", pinnedName)
	case now.Before(c.NotBefore) || now.After(c.NotAfter):
		return nil, errors.Wrapf(ErrNotPinnable, "certificate is only valid from %s to %s", c.NotBefore, c.NotAfter)
	}

	return
}

// KeyPair loads the pem encoded certificate and key a node serves with, the
// certificate must be one that peers can pin
func KeyPair(cert, key []byte) (pair tls.Certificate, err error) {
	_, err = ParseCertificate(cert)
	if err != nil {
		return pair, err
	}

	pair, err = tls.X509KeyPair(cert, key)
	if err != nil {
		return pair, errors.Wrap(err, "failed to load key pair")
	}

	return
}

// CreateCertificates creates a self-signed certificate and its key, both pem
// encoded. The certificate is its own CA so peers pin it directly. If the node
// is reachable on an external ip it is added to the loopback address.
func CreateCertificates(eip net.IP) (cert, key []byte, err error) {
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to generate serial number")
	}

	now := time.Now()
	template := x509.Certificate{
		IsCA:                  true,
		SerialNumber:          serial,
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		NotBefore:             now.Add(-time.Minute), //clock skew between peers
		NotAfter:              now.Add(certValidity),
		IPAddresses:           []net.IP{net.IPv4(127, 0, 0, 1)},
		DNSNames:              []string{pinnedName},
	}

	if eip != nil && !eip.IsUnspecified() && !eip.IsLoopback() {
		template.IPAddresses = append(template.IPAddresses, eip)
	}

	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to generate key pair for certificate")
	}

	c, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to create certificate")
	}

	kb, err := x509.MarshalECPrivateKey(priv)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to marshal private key")
	}

	cert, err = encodePEM("CERTIFICATE", c)
	if err != nil {
		return nil, nil, err
	}

	key, err = encodePEM("EC PRIVATE KEY", kb)
	if err != nil {
		return nil, nil, err
	}

	return
}

func encodePEM(typ string, d []byte) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	err := pem.Encode(buf, &pem.Block{Type: typ, Bytes: d})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to pem encode %s", typ)
	}

	return buf.Bytes(), nil
}
