package acts

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDigestSignerVerifiesContent(t *testing.T) {
	signer, err := NewDigestSigner([]byte("office-secret"))
	require.NoError(t, err)
	act := Act{ID: 4, CaseID: 2, Version: 1, Title: "Vente", Content: "<p>Le vendeur cède...</p>"}

	sig, err := signer.Sign(context.Background(), act, 7, fixedNow)
	require.NoError(t, err)
	require.Equal(t, MethodDigest, sig.Method)
	require.Len(t, sig.Value, 64)
	require.True(t, signer.Verify(act, sig))

	tampered := act
	tampered.Content = strings.Replace(act.Content, "vendeur", "acheteur", 1)
	require.False(t, signer.Verify(tampered, sig))

	other, err := NewDigestSigner([]byte("another-secret"))
	require.NoError(t, err)
	require.False(t, other.Verify(act, sig))

	_, err = NewDigestSigner(nil)
	require.Error(t, err)
	_, err = NewDigestSigner(make([]byte, 65))
	require.Error(t, err)
}

func TestFSVaultMovesAndRestores(t *testing.T) {
	root := t.TempDir()
	generated := filepath.Join(root, "generated")
	vaultDir := filepath.Join(root, "vault")
	require.NoError(t, os.MkdirAll(generated, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(generated, "acte.docx"), []byte("docx"), 0o600))
	vault := NewFSVault(generated, vaultDir)
	ctx := context.Background()

	dest, err := vault.Move(ctx, 12, "acte.docx")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(vaultDir, "case-12", "acte.docx"), dest)
	require.FileExists(t, dest)
	require.NoFileExists(t, filepath.Join(generated, "acte.docx"))

	dest, err = vault.Move(ctx, 12, "missing.docx")
	require.NoError(t, err)
	require.Empty(t, dest)

	require.NoError(t, vault.Restore(ctx, 12, "acte.docx"))
	require.FileExists(t, filepath.Join(generated, "acte.docx"))
	require.NoError(t, vault.Restore(ctx, 12, "acte.docx"), "restoring twice is a no-op")

	dest, err = vault.Move(ctx, 12, "../../acte.docx")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(vaultDir, "case-12", "acte.docx"), dest, "paths are confined to the vault")
}
