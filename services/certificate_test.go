package services

import (
	"context"
	"testing"
	"time"

	"github.com/rykyfilipe/efactura-engine/utils"
	"github.com/stretchr/testify/require"
)

func TestCertificateUploadAndDecryptRoundTrip(t *testing.T) {
	fixture := validCertFixture(t)
	store := &fakeCertificateStore{}
	vault := CreateCertificateService(store, newTestCipher(t), newTestAudit())

	meta, err := vault.Upload(context.Background(), testUserID, testTenantID, fixture.container, testPassphrase)
	require.NoError(t, err)
	require.NotEmpty(t, meta.Thumbprint)
	require.Equal(t, fixture.leaf.SerialNumber.String(), meta.SerialNumber)
	require.Contains(t, meta.IssuerDN, "certSIGN")

	// nothing readable at rest
	record := store.records[0]
	require.NotEqual(t, fixture.container, record.EncryptedData)
	require.NotContains(t, string(record.EncryptedPass), testPassphrase)
	require.Len(t, record.Salt, 32)

	data, pass, err := vault.GetDecrypted(context.Background(), testUserID, testTenantID)
	require.NoError(t, err)
	require.Equal(t, fixture.container, data)
	require.Equal(t, testPassphrase, pass)
}

func TestCertificateUploadRejectsWeakPassphrase(t *testing.T) {
	fixture := validCertFixture(t)
	vault := CreateCertificateService(&fakeCertificateStore{}, newTestCipher(t), newTestAudit())

	_, err := vault.Upload(context.Background(), testUserID, testTenantID, fixture.container, "scurt")
	require.ErrorIs(t, err, utils.ErrWeakPassphrase)
}

func TestCertificateUploadRejectsWrongPassphrase(t *testing.T) {
	fixture := validCertFixture(t)
	vault := CreateCertificateService(&fakeCertificateStore{}, newTestCipher(t), newTestAudit())

	_, err := vault.Upload(context.Background(), testUserID, testTenantID, fixture.container, "parola-gresita")
	require.ErrorIs(t, err, utils.ErrCertificateParse)
}

func TestCertificateUploadRejectsExpired(t *testing.T) {
	expired := makeCertFixture(t,
		time.Now().Add(-2*365*24*time.Hour),
		time.Now().Add(-24*time.Hour),
		"certSIGN Qualified CA")
	vault := CreateCertificateService(&fakeCertificateStore{}, newTestCipher(t), newTestAudit())

	_, err := vault.Upload(context.Background(), testUserID, testTenantID, expired.container, testPassphrase)
	require.ErrorIs(t, err, utils.ErrCertificateExpired)
}

func TestCertificateUploadReplacesActive(t *testing.T) {
	store := &fakeCertificateStore{}
	vault := CreateCertificateService(store, newTestCipher(t), newTestAudit())

	first := validCertFixture(t)
	_, err := vault.Upload(context.Background(), testUserID, testTenantID, first.container, testPassphrase)
	require.NoError(t, err)

	second := validCertFixture(t)
	_, err = vault.Upload(context.Background(), testUserID, testTenantID, second.container, testPassphrase)
	require.NoError(t, err)

	require.Len(t, store.records, 2)
	require.False(t, store.records[0].Active, "previous certificate must be deactivated, not deleted")
	require.True(t, store.records[1].Active)
}

func TestCertificateDecryptFailsClosedOnTamper(t *testing.T) {
	fixture := validCertFixture(t)
	store := &fakeCertificateStore{}
	vault := CreateCertificateService(store, newTestCipher(t), newTestAudit())

	_, err := vault.Upload(context.Background(), testUserID, testTenantID, fixture.container, testPassphrase)
	require.NoError(t, err)

	store.records[0].EncryptedData[0] ^= 0xff

	data, pass, err := vault.GetDecrypted(context.Background(), testUserID, testTenantID)
	require.ErrorIs(t, err, utils.ErrDecryptionFailed)
	require.Nil(t, data)
	require.Empty(t, pass)
}

func TestCertificateTLSIdentity(t *testing.T) {
	vault, fixture := newTestVault(t)

	cert, err := vault.TLSCertificate(context.Background(), testUserID, testTenantID)
	require.NoError(t, err)
	require.NotNil(t, cert.PrivateKey)
	require.Equal(t, fixture.leaf.Raw, cert.Certificate[0])
}

func TestCertificateValidateWarnings(t *testing.T) {
	expiringSoon := makeCertFixture(t,
		time.Now().Add(-time.Hour),
		time.Now().Add(10*24*time.Hour),
		"Unknown Issuing CA")
	vault := CreateCertificateService(&fakeCertificateStore{}, newTestCipher(t), newTestAudit())

	_, err := vault.Upload(context.Background(), testUserID, testTenantID, expiringSoon.container, testPassphrase)
	require.NoError(t, err)

	result, err := vault.Validate(context.Background(), testUserID, testTenantID)
	require.NoError(t, err)
	require.True(t, result.Valid, "warnings must not invalidate the certificate")
	require.Len(t, result.Warnings, 2)
	require.Empty(t, result.Errors)
}

func TestCertificateValidateHealthy(t *testing.T) {
	vault, _ := newTestVault(t)

	result, err := vault.Validate(context.Background(), testUserID, testTenantID)
	require.NoError(t, err)
	require.True(t, result.Valid)
	require.Empty(t, result.Warnings)
}

func TestCertificateValidateContainerDryRun(t *testing.T) {
	vault := CreateCertificateService(&fakeCertificateStore{}, newTestCipher(t), newTestAudit())

	healthy := validCertFixture(t)
	result := vault.ValidateContainer(healthy.container, testPassphrase)
	require.True(t, result.Valid)
	require.Empty(t, result.Errors)
	require.Empty(t, result.Warnings)

	result = vault.ValidateContainer(healthy.container, "parola-gresita")
	require.False(t, result.Valid)
	require.NotEmpty(t, result.Errors)

	expiringSoon := makeCertFixture(t,
		time.Now().Add(-time.Hour),
		time.Now().Add(10*24*time.Hour),
		"Unknown Issuing CA")
	result = vault.ValidateContainer(expiringSoon.container, testPassphrase)
	require.True(t, result.Valid)
	require.Len(t, result.Warnings, 2)
}

func TestCertificateRevoke(t *testing.T) {
	vault, _ := newTestVault(t)

	require.NoError(t, vault.Revoke(context.Background(), testUserID, testTenantID))

	_, _, err := vault.GetDecrypted(context.Background(), testUserID, testTenantID)
	require.ErrorIs(t, err, utils.ErrNoActiveCertificate)

	err = vault.Revoke(context.Background(), testUserID, testTenantID)
	require.ErrorIs(t, err, utils.ErrNoActiveCertificate)
}
