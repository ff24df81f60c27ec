//go:build test

package goble_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-ble/ble"
	"github.com/srg/bleread/internal/device"
	goble "github.com/srg/bleread/internal/device/go-ble"
	"github.com/srg/bleread/internal/testutils"
	"github.com/srg/bleread/internal/testutils/mocks"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

const (
	serviceUUID = "6e400001-b5a3-f393-e0a9-e50e24dcca9e"
	charUUID    = "6e400003-b5a3-f393-e0a9-e50e24dcca9e"
	addr1       = "aa:bb:cc:dd:ee:01"
	addr2       = "aa:bb:cc:dd:ee:02"
	addr3       = "aa:bb:cc:dd:ee:03"
)

type TransportTestSuite struct {
	suite.Suite

	helper    *testutils.TestHelper
	central   *mocks.MockCentral
	client    *mocks.MockGATTClient
	transport *goble.Transport
	events    chan device.Event
	svc       device.Identifier
	char      device.Identifier
}

func (s *TransportTestSuite) SetupTest() {
	s.helper = testutils.NewTestHelper(s.T())
	s.central = &mocks.MockCentral{}
	s.client = mocks.NewMockGATTClient()
	s.events = make(chan device.Event, 64)
	s.svc = s.helper.ID(serviceUUID)
	s.char = s.helper.ID(charUUID)

	s.central.On("Stop").Maybe().Return(nil)
	s.client.On("CancelConnection").Maybe().Return(nil)
	s.transport = goble.NewTransport(s.helper.Logger, goble.Options{
		CentralFactory: func() (goble.Central, error) { return s.central, nil },
	})
}

func (s *TransportTestSuite) TearDownTest() {
	_ = s.transport.Close()
}

func (s *TransportTestSuite) open() {
	s.Require().NoError(s.transport.Open(context.Background(), func(ev device.Event) { s.events <- ev }))
	ev := s.next()
	s.Require().Equal(device.AdapterStateChanged{State: device.AdapterPoweredOn}, ev, "first event MUST report the adapter powered on")
}

func (s *TransportTestSuite) next() device.Event {
	select {
	case ev := <-s.events:
		return ev
	case <-time.After(2 * time.Second):
		s.FailNow("event MUST be delivered")
		return nil
	}
}

func (s *TransportTestSuite) noEvent() {
	select {
	case ev := <-s.events:
		s.Failf("unexpected event", "got %s", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func (s *TransportTestSuite) connect() device.Peripheral {
	p := testutils.Peripheral(addr1, "Sensor", serviceUUID)
	s.central.On("Dial", addr1).Return(s.client, nil).Once()
	s.Require().NoError(s.transport.Connect(p))
	s.Require().Equal(device.Connected{PeripheralID: addr1}, s.next())
	return p
}

func (s *TransportTestSuite) TestOpenReportsPoweredOn() {
	// GOAL: Verify a usable radio is reported as PoweredOn
	//
	// TEST SCENARIO: Open with a working central → AdapterStateChanged(PoweredOn)

	s.open()
}

func (s *TransportTestSuite) TestOpenReportsPoweredOff() {
	// GOAL: Verify the darwin power state error becomes an adapter state event
	//
	// TEST SCENARIO: factory fails with "have=4 want=5" → AdapterStateChanged(PoweredOff) wrapping AdapterUnavailable

	t := goble.NewTransport(s.helper.Logger, goble.Options{
		CentralFactory: func() (goble.Central, error) {
			return nil, errors.New("central manager has invalid state: have=4 want=5: is Bluetooth turned on?")
		},
	})
	defer func() { _ = t.Close() }()

	s.Require().NoError(t.Open(context.Background(), func(ev device.Event) { s.events <- ev }))
	ev, ok := s.next().(device.AdapterStateChanged)
	s.Require().True(ok, "event MUST be AdapterStateChanged")
	s.Assert().Equal(device.AdapterPoweredOff, ev.State)
	s.Assert().ErrorIs(ev.Err, device.ErrAdapterUnavailable)

	s.Assert().Error(t.Scan(nil), "commands MUST be rejected while the adapter is off")
}

func (s *TransportTestSuite) TestCommandsBeforeOpenRejected() {
	// GOAL: Verify commands on an unopened transport fail immediately
	//
	// TEST SCENARIO: Scan/Connect/DiscoverServices before Open → errors, no events

	p := testutils.Peripheral(addr1, "Sensor", serviceUUID)
	s.Assert().Error(s.transport.Scan(nil))
	s.Assert().Error(s.transport.Connect(p))
	s.Assert().Error(s.transport.DiscoverServices(p, nil))
	s.Assert().Error(s.transport.CancelConnection(p))
	s.noEvent()
}

func (s *TransportTestSuite) TestScanFiltersAndDeduplicates() {
	// GOAL: Verify the scan reports each matching peripheral once
	//
	// TEST SCENARIO: A twice, B without the service, C via overflow → PeripheralDiscovered A then C

	s.central.On("Scan", false).Return(nil)
	s.central.WithAdvertisements(
		testutils.NewAdvertisementBuilder().WithName("A").WithAddress(addr1).WithServices(serviceUUID).Build(),
		testutils.NewAdvertisementBuilder().WithName("A").WithAddress(addr1).WithRSSI(-40).WithServices(serviceUUID).Build(),
		testutils.NewAdvertisementBuilder().WithName("B").WithAddress(addr2).WithServices("180d").Build(),
		testutils.NewAdvertisementBuilder().WithAddress(addr3).WithOverflowServices(serviceUUID).
			WithManufacturerData([]byte{0x4c, 0x00, 'T', 'h', 'e', 'r', 'm', 'o'}).Build(),
	)
	s.open()

	s.Require().NoError(s.transport.Scan([]device.Identifier{s.svc}))

	first, ok := s.next().(device.PeripheralDiscovered)
	s.Require().True(ok)
	s.Assert().Equal(addr1, first.Peripheral.ID)
	s.Assert().Equal("A", first.Peripheral.Name)
	s.Assert().True(first.Peripheral.Advertises(s.svc))

	second, ok := s.next().(device.PeripheralDiscovered)
	s.Require().True(ok)
	s.Assert().Equal(addr3, second.Peripheral.ID)
	s.Assert().Equal("Thermo", second.Peripheral.Name, "name MUST fall back to manufacturer data")

	s.noEvent()
	s.Assert().Equal(2, s.transport.Seen())
	s.Require().NoError(s.transport.StopScan())
	s.Require().NoError(s.transport.StopScan(), "StopScan MUST be idempotent")
}

func (s *TransportTestSuite) TestScanErrorReportsAdapterState() {
	// GOAL: Verify a scan that fails because the radio went off reports the adapter state
	//
	// TEST SCENARIO: Scan returns "bluetooth is turned off" → AdapterStateChanged(PoweredOff)

	s.central.On("Scan", false).Return(errors.New("bluetooth is turned off"))
	s.open()

	s.Require().NoError(s.transport.Scan(nil))
	ev, ok := s.next().(device.AdapterStateChanged)
	s.Require().True(ok)
	s.Assert().Equal(device.AdapterPoweredOff, ev.State)
}

func (s *TransportTestSuite) TestConnectDiscoverRead() {
	// GOAL: Verify the GATT commands report their results as events with go-ble handles
	//
	// TEST SCENARIO: Connect → Connected → DiscoverServices → DiscoverCharacteristics → ReadValue → "hi"

	bleSvc := &ble.Service{UUID: ble.MustParse(serviceUUID)}
	bleChar := &ble.Characteristic{UUID: ble.MustParse(charUUID)}
	s.client.On("DiscoverServices", []ble.UUID{s.svc.BLE()}).Return([]*ble.Service{bleSvc}, nil)
	s.client.On("DiscoverCharacteristics", []ble.UUID{s.char.BLE()}, bleSvc).Return([]*ble.Characteristic{bleChar}, nil)
	s.client.On("ReadCharacteristic", bleChar).Return([]byte("hi"), nil)
	s.open()
	p := s.connect()

	s.Require().NoError(s.transport.DiscoverServices(p, []device.Identifier{s.svc}))
	services, ok := s.next().(device.ServicesDiscovered)
	s.Require().True(ok)
	s.Require().NoError(services.Err)
	s.Require().Len(services.Services, 1)
	s.Assert().True(services.Services[0].ID.Equal(s.svc))
	s.Assert().Same(bleSvc, services.Services[0].Handle, "handle MUST be the go-ble service")

	s.Require().NoError(s.transport.DiscoverCharacteristics(p, services.Services[0], []device.Identifier{s.char}))
	chars, ok := s.next().(device.CharacteristicsDiscovered)
	s.Require().True(ok)
	s.Require().Len(chars.Characteristics, 1)
	s.Assert().True(chars.Service.Equal(s.svc))

	s.Require().NoError(s.transport.ReadValue(p, chars.Characteristics[0]))
	value, ok := s.next().(device.ValueUpdated)
	s.Require().True(ok)
	s.Assert().Equal([]byte("hi"), value.Data)
	s.Assert().True(value.Characteristic.Equal(s.char))
	s.Assert().NoError(value.Err)
}

func (s *TransportTestSuite) TestGATTErrorIsNotAdapterState() {
	// GOAL: Verify a GATT read error is reported as is, not as an unusable adapter
	//
	// TEST SCENARIO: ReadCharacteristic fails with "Request Not Supported" → ValueUpdated carries the raw error

	bleChar := &ble.Characteristic{UUID: ble.MustParse(charUUID)}
	gattErr := errors.New("ATT request failed: input channel: Request Not Supported")
	s.client.On("ReadCharacteristic", bleChar).Return(nil, gattErr)
	s.open()
	p := s.connect()

	s.Require().NoError(s.transport.ReadValue(p, device.Characteristic{ID: s.char, Handle: bleChar}))
	value, ok := s.next().(device.ValueUpdated)
	s.Require().True(ok)
	s.Assert().Same(gattErr, value.Err, "read errors MUST pass through unchanged")
	s.Assert().NotErrorIs(value.Err, device.ErrAdapterUnavailable)
}

func (s *TransportTestSuite) TestUnknownHandlesRejected() {
	// GOAL: Verify handles that did not come from this transport are rejected immediately
	//
	// TEST SCENARIO: DiscoverCharacteristics/ReadValue with string handles → errors, no events

	s.open()
	p := s.connect()

	s.Assert().Error(s.transport.DiscoverCharacteristics(p, testutils.Service(serviceUUID), nil))
	s.Assert().Error(s.transport.ReadValue(p, testutils.Characteristic(charUUID)))
	s.noEvent()
}

func (s *TransportTestSuite) TestDialFailure() {
	// GOAL: Verify a failed dial is reported as Disconnected with the cause
	//
	// TEST SCENARIO: Dial returns error → Disconnected(err) → peripheral can be dialed again

	p := testutils.Peripheral(addr1, "Sensor", serviceUUID)
	s.central.On("Dial", addr1).Return(nil, errors.New("connection failed")).Once()
	s.open()

	s.Require().NoError(s.transport.Connect(p))
	ev, ok := s.next().(device.Disconnected)
	s.Require().True(ok)
	s.Assert().Equal(addr1, ev.PeripheralID)
	s.Assert().Error(ev.Err)

	s.central.On("Dial", addr1).Return(s.client, nil).Once()
	s.Require().NoError(s.transport.Connect(p), "link MUST be forgotten after a failed dial")
	s.Assert().Equal(device.Connected{PeripheralID: addr1}, s.next())
}

func (s *TransportTestSuite) TestConnectTwiceRejected() {
	// GOAL: Verify a second Connect for the same peripheral is rejected
	//
	// TEST SCENARIO: Connect → Connected → Connect again → error

	s.open()
	p := s.connect()

	s.Assert().Error(s.transport.Connect(p))
}

func (s *TransportTestSuite) TestCancelConnectionReportsOnce() {
	// GOAL: Verify a requested disconnect yields exactly one clean Disconnected
	//
	// TEST SCENARIO: connected → CancelConnection → client cancelled + Disconnected channel closed → one Disconnected(nil)

	s.open()
	p := s.connect()

	s.Require().NoError(s.transport.CancelConnection(p))
	s.Assert().Equal(device.Disconnected{PeripheralID: addr1}, s.next())
	s.noEvent()
	s.client.AssertCalled(s.T(), "CancelConnection")

	s.Assert().Error(s.transport.CancelConnection(p), "link MUST be gone after disconnect")
}

func (s *TransportTestSuite) TestCancelDuringDial() {
	// GOAL: Verify cancelling a dial in progress reports a clean Disconnected
	//
	// TEST SCENARIO: Dial blocks → CancelConnection → Disconnected(nil), never Connected

	p := testutils.Peripheral(addr1, "Sensor", serviceUUID)
	s.central.On("Dial", addr1).Return(nil, nil).Once()
	s.open()

	s.Require().NoError(s.transport.Connect(p))
	s.Require().NoError(s.transport.CancelConnection(p))

	s.Assert().Equal(device.Disconnected{PeripheralID: addr1}, s.next())
	s.noEvent()
}

func (s *TransportTestSuite) TestLinkLoss() {
	// GOAL: Verify a link dropped by the peripheral is reported as unexpected
	//
	// TEST SCENARIO: connected → Disconnected channel closes → Disconnected(DisconnectedUnexpectedly)

	s.open()
	s.connect()

	s.client.Drop()
	ev, ok := s.next().(device.Disconnected)
	s.Require().True(ok)
	s.Assert().ErrorIs(ev.Err, device.ErrDisconnectedUnexpectedly)
}

func (s *TransportTestSuite) TestCloseCancelsLinksAndStopsCentral() {
	// GOAL: Verify Close releases the radio and every link
	//
	// TEST SCENARIO: connected + scanning → Close → client cancelled, central stopped, commands rejected

	s.central.On("Scan", mock.Anything).Return(nil)
	s.open()
	p := s.connect()
	s.Require().NoError(s.transport.Scan(nil))

	s.Require().NoError(s.transport.Close())
	s.client.AssertCalled(s.T(), "CancelConnection")
	s.central.AssertCalled(s.T(), "Stop")
	s.Assert().Error(s.transport.Scan(nil))
	s.Assert().Error(s.transport.DiscoverServices(p, nil))
	s.Require().NoError(s.transport.Close(), "Close MUST be idempotent")
}

func TestTransportTestSuite(t *testing.T) {
	suite.Run(t, new(TransportTestSuite))
}
