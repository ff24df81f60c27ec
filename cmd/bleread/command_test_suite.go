//go:build test

package main

import (
	"bytes"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/bleread/internal/device"
	goble "github.com/srg/bleread/internal/device/go-ble"
	"github.com/srg/bleread/internal/testutils"
	"github.com/srg/bleread/internal/testutils/mocks"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

// Test peripheral addresses, lower-case as go-ble reports them.
const (
	TestPeripheralAddress1 = "aa:bb:cc:dd:ee:01"
	TestPeripheralAddress2 = "aa:bb:cc:dd:ee:02"
)

// CommandTestSuite runs commands against a real go-ble transport whose radio
// is a MockCentral. All cmd/bleread suites embed it.
type CommandTestSuite struct {
	suite.Suite

	Central    *mocks.MockCentral
	Client     *mocks.MockGATTClient
	CentralErr error // returned by the central factory when set

	BLEService        *ble.Service
	BLECharacteristic *ble.Characteristic

	origFactory     func(*logrus.Logger, bool) device.Transport
	origAdapterWait time.Duration
}

func (s *CommandTestSuite) SetupTest() {
	s.Central = &mocks.MockCentral{}
	s.Client = mocks.NewMockGATTClient()
	s.CentralErr = nil
	s.BLEService = &ble.Service{UUID: ble.MustParse("180d")}
	s.BLECharacteristic = &ble.Characteristic{UUID: ble.MustParse("2a19")}

	s.Central.On("Stop").Maybe().Return(nil)
	s.Client.On("CancelConnection").Maybe().Return(nil)

	s.origFactory = transportFactory
	s.origAdapterWait = adapterWaitTimeout
	adapterWaitTimeout = time.Second
	transportFactory = func(logger *logrus.Logger, allowDuplicates bool) device.Transport {
		return goble.NewTransport(logger, goble.Options{
			AllowDuplicates: allowDuplicates,
			CentralFactory: func() (goble.Central, error) {
				if s.CentralErr != nil {
					return nil, s.CentralErr
				}
				return s.Central, nil
			},
		})
	}
}

func (s *CommandTestSuite) TearDownTest() {
	transportFactory = s.origFactory
	adapterWaitTimeout = s.origAdapterWait
}

// AdvertiseThermo makes the next scan report a peripheral named Thermo
// advertising the 180d service at TestPeripheralAddress1.
func (s *CommandTestSuite) AdvertiseThermo(allowDuplicates bool) {
	s.Central.WithAdvertisements(testutils.CreateMockAdvertisement("Thermo", TestPeripheralAddress1, "180d"))
	s.Central.On("Scan", allowDuplicates).Return(nil)
}

// ServeValue wires a connectable Thermo whose 2a19 characteristic reads value.
func (s *CommandTestSuite) ServeValue(value []byte) {
	s.Central.On("Dial", TestPeripheralAddress1).Return(s.Client, nil)
	s.Client.On("DiscoverServices", mock.Anything).Return([]*ble.Service{s.BLEService}, nil)
	s.Client.On("DiscoverCharacteristics", mock.Anything, s.BLEService).Return([]*ble.Characteristic{s.BLECharacteristic}, nil)
	s.Client.On("ReadCharacteristic", s.BLECharacteristic).Return(value, nil)
}

// ExecuteCommand runs a fresh command tree with args and returns stdout,
// stderr and the error.
func (s *CommandTestSuite) ExecuteCommand(args ...string) (string, string, error) {
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	root := newRootCmd()
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}
