package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/nurpe/tms-trips/internal/model"
	"github.com/nurpe/tms-trips/internal/repository"
)

// memoryStore backs every store interface with maps and mirrors the
// transactional rules of the postgres repositories.
type memoryStore struct {
	mu        sync.Mutex
	trips     map[uuid.UUID]model.Trip
	vehicles  map[uuid.UUID]model.Vehicle
	drivers   map[uuid.UUID]model.Driver
	locations map[uuid.UUID]model.Location
	samples   map[uuid.UUID]model.LocationSample
	lanes     []model.Lane
	consents  map[uuid.UUID]model.Consent
	shipments map[uuid.UUID]model.Shipment
	links     []model.TripShipment
	audits    []model.TripAssignmentAudit

	commits      int
	consentSaves int
	// staleAvailability hides active trips from validation reads to simulate
	// a concurrent writer slipping in between evaluate and commit.
	staleAvailability bool
	readErr           error
	candidateCells    []string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		trips:     make(map[uuid.UUID]model.Trip),
		vehicles:  make(map[uuid.UUID]model.Vehicle),
		drivers:   make(map[uuid.UUID]model.Driver),
		locations: make(map[uuid.UUID]model.Location),
		samples:   make(map[uuid.UUID]model.LocationSample),
		consents:  make(map[uuid.UUID]model.Consent),
		shipments: make(map[uuid.UUID]model.Shipment),
	}
}

func (m *memoryStore) GetTrip(_ context.Context, id uuid.UUID) (*model.Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	trip, ok := m.trips[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &trip, nil
}

func (m *memoryStore) FindActiveTripByVehicle(_ context.Context, vehicleID uuid.UUID, exclude *uuid.UUID) (*model.Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return nil, m.readErr
	}
	if m.staleAvailability {
		return nil, nil
	}
	return m.activeHolder(func(t model.Trip) *uuid.UUID { return t.VehicleID }, vehicleID, exclude), nil
}

func (m *memoryStore) FindActiveTripByDriver(_ context.Context, driverID uuid.UUID, exclude *uuid.UUID) (*model.Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.staleAvailability {
		return nil, nil
	}
	return m.activeHolder(func(t model.Trip) *uuid.UUID { return t.DriverID }, driverID, exclude), nil
}

func (m *memoryStore) activeHolder(ref func(model.Trip) *uuid.UUID, id uuid.UUID, exclude *uuid.UUID) *model.Trip {
	for _, trip := range m.trips {
		if exclude != nil && trip.ID == *exclude {
			continue
		}
		if r := ref(trip); r != nil && *r == id && trip.Status.IsActive() {
			found := trip
			return &found
		}
	}
	return nil
}

func (m *memoryStore) FindLane(_ context.Context, originID, destinationID uuid.UUID) (*model.Lane, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, lane := range m.lanes {
		if lane.OriginID == originID && lane.DestinationID == destinationID {
			found := lane
			return &found, nil
		}
	}
	return nil, nil
}

func (m *memoryStore) CommitTrip(_ context.Context, commit repository.TripCommit) (*model.Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	trip := commit.Trip
	if trip.OriginID != nil && trip.DestinationID != nil {
		var lane *model.Lane
		for i := range m.lanes {
			if m.lanes[i].OriginID == *trip.OriginID && m.lanes[i].DestinationID == *trip.DestinationID {
				lane = &m.lanes[i]
			}
		}
		if lane == nil {
			m.lanes = append(m.lanes, model.Lane{
				ID:            uuid.New(),
				Code:          commit.LaneCode,
				OriginID:      *trip.OriginID,
				DestinationID: *trip.DestinationID,
			})
			lane = &m.lanes[len(m.lanes)-1]
		}
		laneID := lane.ID
		trip.LaneID = &laneID
		if trip.TotalDistanceKm == nil {
			trip.TotalDistanceKm = lane.DistanceKm
		}
	}

	if trip.VehicleID != nil {
		if holder := m.activeHolder(func(t model.Trip) *uuid.UUID { return t.VehicleID }, *trip.VehicleID, &trip.ID); holder != nil {
			return nil, &repository.ConflictError{Field: "vehicle_id", TripCode: holder.Code, Reason: "vehicle is already assigned to an active trip"}
		}
	}
	if trip.DriverID != nil {
		if holder := m.activeHolder(func(t model.Trip) *uuid.UUID { return t.DriverID }, *trip.DriverID, &trip.ID); holder != nil {
			return nil, &repository.ConflictError{Field: "driver_id", TripCode: holder.Code, Reason: "driver is already assigned to an active trip"}
		}
	}

	if commit.IsNew {
		trip.CreatedAt = commit.Now
	} else if _, ok := m.trips[trip.ID]; !ok {
		return nil, gorm.ErrRecordNotFound
	}
	trip.UpdatedAt = commit.Now

	consents := make(map[uuid.UUID]model.Consent, len(m.consents))
	for k, v := range m.consents {
		consents[k] = v
	}
	if commit.ReleaseConsentID != nil {
		for driverID, consent := range consents {
			if consent.ID == *commit.ReleaseConsentID && consent.TripID != nil && *consent.TripID == trip.ID {
				consent.TripID = nil
				consents[driverID] = consent
			}
		}
	}
	if !commit.IsNew {
		for driverID, consent := range consents {
			if consent.TripID != nil && *consent.TripID == trip.ID && !model.SameID(&driverID, trip.DriverID) {
				consent.TripID = nil
				consents[driverID] = consent
			}
		}
	}
	if commit.ConsumeConsentID != nil {
		linked := false
		for driverID, consent := range consents {
			if consent.ID != *commit.ConsumeConsentID || !consent.IsUsable(commit.Now) {
				continue
			}
			if consent.TripID != nil && *consent.TripID != trip.ID {
				if holder, ok := m.trips[*consent.TripID]; ok && holder.Status.IsActive() {
					continue
				}
			}
			tripID := trip.ID
			consent.TripID = &tripID
			consents[driverID] = consent
			linked = true
		}
		if !linked {
			return nil, &repository.ConflictError{Field: "consent_id", Reason: "consent is not granted or is linked to another active trip"}
		}
	}

	shipments := make(map[uuid.UUID]model.Shipment, len(commit.ShipmentIDs))
	var links []model.TripShipment
	last := 0
	for _, link := range m.links {
		if link.TripID == trip.ID && link.SequenceOrder > last {
			last = link.SequenceOrder
		}
	}
	for i, id := range commit.ShipmentIDs {
		shipment, ok := m.shipments[id]
		if !ok || shipment.TripID != nil || !shipment.Status.IsMappable() {
			return nil, &repository.ConflictError{Field: "shipment_ids", Reason: "shipment is no longer available for mapping"}
		}
		tripID := trip.ID
		now := commit.Now
		shipment.Status = model.ShipmentStatusMapped
		shipment.TripID = &tripID
		shipment.MappedAt = &now
		shipments[id] = shipment
		links = append(links, model.TripShipment{TripID: trip.ID, ShipmentID: id, SequenceOrder: last + i + 1})
	}

	m.trips[trip.ID] = trip
	m.consents = consents
	for id, shipment := range shipments {
		m.shipments[id] = shipment
	}
	m.links = append(m.links, links...)
	if commit.Audit != nil {
		audit := *commit.Audit
		audit.ID = uuid.New()
		audit.TripID = trip.ID
		audit.CreatedAt = commit.Now
		m.audits = append(m.audits, audit)
	}
	m.commits++

	saved := trip
	return &saved, nil
}

func (m *memoryStore) UpdateTripStatus(_ context.Context, trip model.Trip, from model.TripStatus) (*model.Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.trips[trip.ID]
	if !ok || current.Status != from {
		return nil, &repository.ConflictError{Field: "status", TripCode: trip.Code, Reason: "trip status changed concurrently"}
	}
	m.trips[trip.ID] = trip
	return &trip, nil
}

func (m *memoryStore) ListAssignmentAudit(_ context.Context, tripID uuid.UUID) ([]model.TripAssignmentAudit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []model.TripAssignmentAudit
	for _, audit := range m.audits {
		if audit.TripID == tripID {
			result = append(result, audit)
		}
	}
	return result, nil
}

func (m *memoryStore) GetVehicle(_ context.Context, id uuid.UUID) (*model.Vehicle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	vehicle, ok := m.vehicles[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &vehicle, nil
}

func (m *memoryStore) GetDriver(_ context.Context, id uuid.UUID) (*model.Driver, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	driver, ok := m.drivers[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &driver, nil
}

func (m *memoryStore) GetLocation(_ context.Context, id uuid.UUID) (*model.Location, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	location, ok := m.locations[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &location, nil
}

func (m *memoryStore) LatestLocationSample(_ context.Context, vehicleID uuid.UUID) (*model.LocationSample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sample, ok := m.samples[vehicleID]
	if !ok {
		return nil, nil
	}
	return &sample, nil
}

func (m *memoryStore) GetByDriver(_ context.Context, driverID uuid.UUID) (*model.Consent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	consent, ok := m.consents[driverID]
	if !ok {
		return nil, nil
	}
	return &consent, nil
}

func (m *memoryStore) GetByID(_ context.Context, id uuid.UUID) (*model.Consent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, consent := range m.consents {
		if consent.ID == id {
			found := consent
			return &found, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *memoryStore) Save(_ context.Context, consent model.Consent) (*model.Consent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.consents[consent.DriverID]; ok {
		consent.ID = existing.ID
		consent.CreatedAt = existing.CreatedAt
	} else {
		consent.ID = uuid.New()
		consent.CreatedAt = consent.UpdatedAt
	}
	m.consents[consent.DriverID] = consent
	m.consentSaves++
	return &consent, nil
}

func (m *memoryStore) Consume(_ context.Context, consentID, tripID uuid.UUID, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for driverID, consent := range m.consents {
		if consent.ID != consentID {
			continue
		}
		if !consent.IsUsable(now) {
			break
		}
		if consent.TripID != nil && *consent.TripID != tripID {
			if holder, ok := m.trips[*consent.TripID]; ok && holder.Status.IsActive() {
				break
			}
		}
		trip, ok := m.trips[tripID]
		if !ok || !model.SameID(trip.DriverID, &consent.DriverID) {
			break
		}
		consent.TripID = &tripID
		m.consents[driverID] = consent
		consentID := consent.ID
		trip.ConsentID = &consentID
		if trip.TrackingType == model.TrackingManual {
			trip.TrackingType = model.TrackingSIM
		}
		trip.UpdatedAt = now
		m.trips[tripID] = trip
		return nil
	}
	return &repository.ConflictError{Field: "consent_id", Reason: "consent is not granted or is linked to another active trip"}
}

func (m *memoryStore) GetShipment(_ context.Context, id uuid.UUID) (*model.Shipment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	shipment, ok := m.shipments[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &shipment, nil
}

func (m *memoryStore) GetShipments(_ context.Context, ids []uuid.UUID) ([]model.Shipment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]model.Shipment, 0, len(ids))
	for _, id := range ids {
		if shipment, ok := m.shipments[id]; ok {
			result = append(result, shipment)
		}
	}
	return result, nil
}

func (m *memoryStore) ListCandidates(_ context.Context, customerID, originID uuid.UUID, cells []string) ([]model.Shipment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.candidateCells = cells
	var result []model.Shipment
	for _, shipment := range m.shipments {
		if shipment.CustomerID == customerID && shipment.TripID == nil && shipment.Status.IsMappable() &&
			shipment.PickupLocationID == originID {
			result = append(result, shipment)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Code < result[j].Code })
	return result, nil
}

func (m *memoryStore) SetStatus(_ context.Context, id uuid.UUID, status model.ShipmentStatus) (*model.Shipment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	shipment, ok := m.shipments[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	shipment.Status = status
	m.shipments[id] = shipment
	return &shipment, nil
}

func (m *memoryStore) Delete(_ context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	shipment, ok := m.shipments[id]
	if !ok || shipment.Status != model.ShipmentStatusCreated || shipment.TripID != nil {
		return false, nil
	}
	delete(m.shipments, id)
	return true, nil
}

func (m *memoryStore) linksFor(tripID uuid.UUID) []model.TripShipment {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []model.TripShipment
	for _, link := range m.links {
		if link.TripID == tripID {
			result = append(result, link)
		}
	}
	return result
}

type fixture struct {
	store       *memoryStore
	admission   *AdmissionService
	consents    *ConsentService
	shipments   *ShipmentService
	notifier    *recordingNotifier
	now         time.Time
	dispatcher  model.Principal
	customerID  uuid.UUID
	transporter uuid.UUID
	origin      model.Location
	destination model.Location
}

type recordingNotifier struct {
	mu       sync.Mutex
	requests []model.Consent
}

func (n *recordingNotifier) NotifyConsentRequest(_ context.Context, consent model.Consent, _ *uuid.UUID) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.requests = append(n.requests, consent)
	return nil
}

func newFixture() *fixture {
	store := newMemoryStore()
	now := time.Date(2026, 5, 20, 9, 30, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	admission := NewAdmissionService(store, store, store, store, store, AdmissionConfig{
		ProximityRadiusKm: 50,
		ExpiryWarningDays: 30,
		StoreTimeout:      time.Second,
	}, zerolog.Nop())
	admission.now = clock

	notifier := &recordingNotifier{}
	consents := NewConsentService(store, store, notifier, 72*time.Hour, time.Second, zerolog.Nop())
	consents.now = clock

	originLat, originLon := 28.6139, 77.2090
	destLat, destLon := 19.0760, 72.8777
	f := &fixture{
		store:       store,
		admission:   admission,
		consents:    consents,
		shipments:   NewShipmentService(store, store, store, time.Second, zerolog.Nop()),
		notifier:    notifier,
		now:         now,
		dispatcher:  model.Principal{UserID: uuid.New(), OrgID: uuid.New(), Role: model.RoleDispatcher},
		customerID:  uuid.New(),
		transporter: uuid.New(),
		origin:      model.Location{ID: uuid.New(), Name: "Delhi DC", Latitude: &originLat, Longitude: &originLon},
		destination: model.Location{ID: uuid.New(), Name: "Mumbai DC", Latitude: &destLat, Longitude: &destLon},
	}
	store.locations[f.origin.ID] = f.origin
	store.locations[f.destination.ID] = f.destination
	return f
}

func (f *fixture) days(n int) *time.Time {
	t := f.now.AddDate(0, 0, n)
	return &t
}

// compliantVehicle has every document valid and sits 2 km from the origin.
func (f *fixture) compliantVehicle(withChannel bool) model.Vehicle {
	vehicle := model.Vehicle{
		ID:                 uuid.New(),
		Number:             "DL01AB" + uuid.NewString()[:4],
		RegistrationExpiry: f.days(400),
		InsuranceExpiry:    f.days(400),
		PermitExpiry:       f.days(400),
		FitnessExpiry:      f.days(400),
		PollutionExpiry:    f.days(400),
		IsActive:           true,
	}
	if withChannel {
		channel := uuid.New()
		vehicle.TrackingChannelID = &channel
	}
	f.store.vehicles[vehicle.ID] = vehicle
	f.store.samples[vehicle.ID] = model.LocationSample{
		Latitude:   *f.origin.Latitude + 0.018,
		Longitude:  *f.origin.Longitude,
		RecordedAt: f.now.Add(-10 * time.Minute),
	}
	return vehicle
}

func (f *fixture) compliantDriver() model.Driver {
	driver := model.Driver{
		ID:              uuid.New(),
		Name:            "Ravi",
		Mobile:          "+919800000001",
		LicenseExpiry:   f.days(400),
		AadhaarVerified: true,
		PanVerified:     true,
		IsActive:        true,
	}
	f.store.drivers[driver.ID] = driver
	return driver
}

func (f *fixture) grantConsent(driverID uuid.UUID) model.Consent {
	granted := f.now.Add(-time.Hour)
	expires := f.now.Add(48 * time.Hour)
	consent := model.Consent{
		ID:        uuid.New(),
		DriverID:  driverID,
		MSISDN:    "+919800000001",
		Status:    model.ConsentGranted,
		GrantedAt: &granted,
		ExpiresAt: &expires,
	}
	f.store.consents[driverID] = consent
	return consent
}

func (f *fixture) candidate(vehicle *model.Vehicle, driver *model.Driver) TripCandidate {
	originID, destinationID := f.origin.ID, f.destination.ID
	c := TripCandidate{
		OriginID:      &originID,
		DestinationID: &destinationID,
		CustomerID:    f.customerID,
		TransporterID: f.transporter,
	}
	if vehicle != nil {
		id := vehicle.ID
		c.VehicleID = &id
	}
	if driver != nil {
		id := driver.ID
		c.DriverID = &id
	}
	return c
}

func codes(findings model.Findings) []string {
	result := make([]string, 0, len(findings))
	for _, finding := range findings {
		result = append(result, finding.Code)
	}
	return result
}
