/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: utils_test.go
Description: Tests for the command loaders reading crypto material and scenarios
from the configuration.
*/

package commands

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const certificateScenario = `
[general]
name = tls12 client
role = client
tls_version = tls12
input_vocabulary = ClientHello, Cert_{crypto_material_name}
interesting_paths = cert
happy_paths = full

[cert]
path = ClientHello, Cert_{crypto_material_name}
parameter = crypto_material_name

[full]
path = ClientHello, Cert_rsa
answers = ServerHello, Finished
`

// TestLoadScenarioKeepsDefaultMaterial tests that the DEFAULT material expands placeholders too
func TestLoadScenarioKeepsDefaultMaterial(t *testing.T) {
	t.Cleanup(viper.Reset)

	path := filepath.Join(t.TempDir(), "client.ini")
	require.NoError(t, os.WriteFile(path, []byte(certificateScenario), 0644))
	viper.Set("scenario", path)
	viper.Set("crypto_material", []string{"rsa:rsa.crt:rsa.key:DEFAULT", "ecdsa:e.crt:e.key"})

	material, err := loadCryptoMaterial()
	require.NoError(t, err)
	s, err := loadScenario(material)
	require.NoError(t, err)

	assert.Equal(t, []string{"ClientHello", "Cert_rsa", "Cert_ecdsa"}, s.InputVocabulary)
	assert.Contains(t, s.InterestingPaths, []string{"ClientHello", "Cert_rsa"})
	assert.Contains(t, s.InterestingPaths, []string{"ClientHello", "Cert_ecdsa"})
}

// TestLoadScenarioRequiresFile tests the missing scenario setting
func TestLoadScenarioRequiresFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	material, err := loadCryptoMaterial()
	require.NoError(t, err)
	assert.Equal(t, 0, material.Len())

	_, err = loadScenario(material)
	assert.Error(t, err)
}
