//go:build test

package main

import (
	"errors"
	"testing"

	"github.com/srg/bleread/internal/device"
	"github.com/srg/bleread/internal/testutils"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

type ScanTestSuite struct {
	CommandTestSuite
}

func (s *ScanTestSuite) advertise() {
	s.Central.WithAdvertisements(
		testutils.CreateMockAdvertisement("Thermo", TestPeripheralAddress1, "180d"),
		testutils.CreateMockAdvertisement("Other", TestPeripheralAddress2, "180f"),
		testutils.NewAdvertisementBuilder().
			WithName("Thermo").
			WithAddress(TestPeripheralAddress1).
			WithServices("180d").
			WithRSSI(-40).
			Build(),
	)
	s.Central.On("Scan", true).Return(nil)
}

func (s *ScanTestSuite) TestScanListsMatchingPeripherals() {
	// GOAL: Verify scan lists each matching peripheral once with its latest RSSI
	//
	// TEST SCENARIO: Thermo advertises twice, Other lacks the service → table with one Thermo row at -40 dBm
	s.advertise()

	out, _, err := s.ExecuteCommand("scan", "--service", "180d", "--timeout", "200ms", "--log-level", "error")

	s.Require().NoError(err)
	testutils.NewTextAsserter(s.T()).Assert(out, `
NAME    ADDRESS            RSSI     SERVICES
Thermo  aa:bb:cc:dd:ee:01  -40 dBm  180d
`)
	s.Central.AssertNotCalled(s.T(), "Dial", mock.Anything)
}

func (s *ScanTestSuite) TestScanAllJSON() {
	// GOAL: Verify --all disables the service filter and --json keeps first-seen order
	//
	// TEST SCENARIO: --all --json → Thermo then Other, Thermo with refreshed RSSI
	s.advertise()

	out, _, err := s.ExecuteCommand("scan", "--all", "--json", "--timeout", "200ms", "--log-level", "error")

	s.Require().NoError(err)
	testutils.NewJSONAsserter(s.T()).Assert(out, `[
		{"address": "aa:bb:cc:dd:ee:01", "name": "Thermo", "rssi": -40, "services": ["180d"]},
		{"address": "aa:bb:cc:dd:ee:02", "name": "Other", "rssi": -60, "services": ["180f"]}
	]`)
}

func (s *ScanTestSuite) TestScanShortensLongServiceIDs() {
	// GOAL: Verify the table shortens 128-bit service ids while JSON keeps them whole
	//
	// TEST SCENARIO: UART peripheral advertises a 128-bit service → table shows "6e400001", JSON the full id,
	//                debug log reports how many peripherals the scan saw
	uart := "6e400001-b5a3-f393-e0a9-e50e24dcca9e"
	s.Central.WithAdvertisements(testutils.CreateMockAdvertisement("UART", TestPeripheralAddress2, uart))
	s.Central.On("Scan", true).Return(nil)

	out, stderr, err := s.ExecuteCommand("scan", "--service", uart, "--timeout", "100ms", "--log-level", "debug")

	s.Require().NoError(err)
	testutils.NewTextAsserter(s.T()).Assert(out, `
NAME  ADDRESS            RSSI     SERVICES
UART  aa:bb:cc:dd:ee:02  -60 dBm  6e400001
`)
	s.Contains(stderr, "Scan finished", "the scan summary MUST be logged at debug level")
	s.Contains(stderr, "seen=1")

	out, _, err = s.ExecuteCommand("scan", "--service", uart, "--json", "--timeout", "100ms", "--log-level", "error")

	s.Require().NoError(err)
	testutils.NewJSONAsserter(s.T()).Assert(out, `[
		{"address": "aa:bb:cc:dd:ee:02", "name": "UART", "rssi": -60, "services": ["6e400001-b5a3-f393-e0a9-e50e24dcca9e"]}
	]`)
}

func (s *ScanTestSuite) TestScanNothingFound() {
	s.Central.On("Scan", true).Return(nil)

	out, _, err := s.ExecuteCommand("scan", "--service", "180d", "--timeout", "100ms", "--log-level", "error")

	s.Require().NoError(err, "an empty scan MUST NOT be an error")
	s.Contains(out, "No peripherals discovered")
}

func (s *ScanTestSuite) TestScanAdapterUnavailable() {
	// GOAL: Verify scan fails before scanning when the adapter cannot be used
	//
	// TEST SCENARIO: central init fails with a permission error → AdapterUnavailable → no Scan call
	s.CentralErr = errors.New("can't set socket option: operation not permitted")

	_, _, err := s.ExecuteCommand("scan", "--service", "180d", "--log-level", "error")

	s.Require().ErrorIs(err, device.ErrAdapterUnavailable)
	s.Contains(err.Error(), "unauthorized")
	s.Central.AssertNotCalled(s.T(), "Scan", mock.Anything)
}

func (s *ScanTestSuite) TestScanRequiresService() {
	_, _, err := s.ExecuteCommand("scan")
	s.ErrorContains(err, "service_uuid is required")
}

func TestScanTestSuite(t *testing.T) {
	suite.Run(t, new(ScanTestSuite))
}
