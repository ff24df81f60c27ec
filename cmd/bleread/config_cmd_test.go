//go:build test

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/srg/bleread/internal/device"
	"github.com/srg/bleread/internal/testutils"
	"github.com/stretchr/testify/suite"
)

type ConfigCommandTestSuite struct {
	CommandTestSuite
}

func (s *ConfigCommandTestSuite) TestPrintsDefaultsWithFlags() {
	out, _, err := s.ExecuteCommand("config", "--service", "180d", "--char", "2a19")

	s.Require().NoError(err)
	testutils.NewTextAsserter(s.T()).Assert(out, `
service_uuid: 180d
characteristic_uuid: 2a19
scan_timeout: 5s
log_level: info
auto_read: true
`)
}

func (s *ConfigCommandTestSuite) TestFlagsOverrideFile() {
	// GOAL: Verify flags take precedence over the config file
	//
	// TEST SCENARIO: file sets service, timeout and alias → flag overrides timeout → printed config merges both
	path := filepath.Join(s.T().TempDir(), "sensor.yaml")
	s.Require().NoError(os.WriteFile(path, []byte("service_uuid: ffe0\nlegacy_service_uuid: 180d\ncharacteristic_uuid: ffe1\nscan_timeout: 30s\n"), 0o600))

	out, _, err := s.ExecuteCommand("config", "--config", path, "--timeout", "2s", "--check")

	s.Require().NoError(err)
	testutils.NewTextAsserter(s.T()).Assert(out, `
service_uuid: ffe0
legacy_service_uuid: 180d
characteristic_uuid: ffe1
scan_timeout: 2s
log_level: info
auto_read: true
`)
}

func (s *ConfigCommandTestSuite) TestCheckRejectsIncompleteConfig() {
	// GOAL: Verify --check fails without printing anything, not even usage
	//
	// TEST SCENARIO: characteristic missing → validation error → empty stdout, no usage text on either stream
	out, stderr, err := s.ExecuteCommand("config", "--service", "180d", "--check")

	s.ErrorContains(err, "characteristic_uuid is required")
	s.Empty(out, "an invalid config MUST NOT be printed with --check")
	s.NotContains(stderr, "Usage:", "a validation failure MUST NOT print usage")
}

func (s *ConfigCommandTestSuite) TestFormatUserError() {
	s.Equal("plain", FormatUserError(errorString("plain")))
	s.Equal(
		"Service not found: ffe0 not offered by Thermo\n  hint: the peripheral advertised the service but did not offer it; check --service",
		FormatUserError(device.Errorf(device.ServiceNotFound, "ffe0 not offered by Thermo")),
	)
	s.Equal("Invalid Data: 2a19", FormatUserError(device.Errorf(device.InvalidReadPayload, "2a19")),
		"kinds without a hint MUST render summary and detail only")
}

type errorString string

func (e errorString) Error() string { return string(e) }

func TestConfigCommandTestSuite(t *testing.T) {
	suite.Run(t, new(ConfigCommandTestSuite))
}
