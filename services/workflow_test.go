package services

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/textproto"
	"sync"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/apexshine/apexshine-api/models"
)

func setupWorkflowTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	if err := db.AutoMigrate(
		&models.User{},
		&models.Vehicle{},
		&models.CatalogService{},
		&models.ProcessTemplate{},
		&models.ProcessTemplateStage{},
		&models.Booking{},
		&models.BookingServiceLine{},
		&models.Stage{},
		&models.StageImage{},
		&models.AddonRequest{},
	); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	return db
}

// seedUsers creates one user per role and returns their actors
func seedUsers(t *testing.T, db *gorm.DB) (client, staff, admin Actor) {
	t.Helper()

	users := []models.User{
		{Auth0ID: "auth0|client1", Name: "Casey Customer", Email: "casey@example.com", Role: models.RoleClient},
		{Auth0ID: "auth0|staff1", Name: "Sam Staff", Email: "sam@example.com", Role: models.RoleStaff},
		{Auth0ID: "auth0|admin1", Name: "Alex Admin", Email: "alex@example.com", Role: models.RoleAdmin},
	}
	for i := range users {
		if err := db.Create(&users[i]).Error; err != nil {
			t.Fatalf("Failed to seed user: %v", err)
		}
	}

	return ActorFromUser(&users[0]), ActorFromUser(&users[1]), ActorFromUser(&users[2])
}

// seedTemplate creates a process template with the given stage keys; every
// photoStages key gets requires_photo set
func seedTemplate(t *testing.T, db *gorm.DB, category string, stageKeys []string, photoStages ...string) models.ProcessTemplate {
	t.Helper()

	needsPhoto := make(map[string]bool, len(photoStages))
	for _, key := range photoStages {
		needsPhoto[key] = true
	}

	template := models.ProcessTemplate{Category: category, Name: category + " pipeline"}
	if err := db.Create(&template).Error; err != nil {
		t.Fatalf("Failed to seed template: %v", err)
	}

	for i, key := range stageKeys {
		stage := models.ProcessTemplateStage{
			TemplateID:    template.ID,
			StageKey:      key,
			Name:          key,
			StageOrder:    i + 1,
			RequiresPhoto: needsPhoto[key],
			EstimatedMins: 30,
		}
		if err := db.Create(&stage).Error; err != nil {
			t.Fatalf("Failed to seed template stage: %v", err)
		}
	}

	return template
}

// seedBooking creates a confirmed booking with its customer, vehicle and
// primary service
func seedBooking(t *testing.T, db *gorm.DB, clientID uint, category, priority string) models.Booking {
	t.Helper()

	vehicle := models.Vehicle{OwnerID: clientID, Make: "Audi", Model: "A4", Plate: "APX-001"}
	if err := db.Create(&vehicle).Error; err != nil {
		t.Fatalf("Failed to seed vehicle: %v", err)
	}

	service := models.CatalogService{Title: "Full Detail", Category: category, Price: 250.0}
	if err := db.Create(&service).Error; err != nil {
		t.Fatalf("Failed to seed catalog service: %v", err)
	}

	booking := models.Booking{
		CustomerID:      clientID,
		VehicleID:       vehicle.ID,
		ServiceID:       service.ID,
		ServiceCategory: category,
		Status:          models.BookingConfirmed,
		Priority:        priority,
		PaymentAmount:   250.0,
	}
	if err := db.Create(&booking).Error; err != nil {
		t.Fatalf("Failed to seed booking: %v", err)
	}

	return booking
}

// createTestImageHeader builds a multipart.FileHeader carrying a fake photo
func createTestImageHeader(t *testing.T, filename string) *multipart.FileHeader {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="image"; filename="`+filename+`"`)
	h.Set("Content-Type", "image/jpeg")
	part, err := writer.CreatePart(h)
	if err != nil {
		t.Fatalf("Failed to create multipart part: %v", err)
	}
	if _, err := part.Write([]byte("fake image bytes")); err != nil {
		t.Fatalf("Failed to write image content: %v", err)
	}
	writer.Close()

	reader := multipart.NewReader(body, writer.Boundary())
	form, err := reader.ReadForm(1 << 20)
	if err != nil {
		t.Fatalf("Failed to parse multipart form: %v", err)
	}

	if len(form.File["image"]) == 0 {
		t.Fatal("No image file in parsed form")
	}
	return form.File["image"][0]
}

// recordingNotifier captures notification intents for assertions
type recordingNotifier struct {
	mu      sync.Mutex
	intents []NotificationIntent
}

func (n *recordingNotifier) Notify(_ context.Context, intent NotificationIntent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.intents = append(n.intents, intent)
	return nil
}

func (n *recordingNotifier) Intents() []NotificationIntent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]NotificationIntent(nil), n.intents...)
}

// recordingBroadcaster captures published events for assertions
type recordingBroadcaster struct {
	mu     sync.Mutex
	events []Event
}

func (b *recordingBroadcaster) Publish(topic string, event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	event.Topic = topic
	b.events = append(b.events, event)
}

func (b *recordingBroadcaster) Subscribe(topic string) (<-chan Event, func()) {
	ch := make(chan Event)
	close(ch)
	return ch, func() {}
}

func (b *recordingBroadcaster) EventsFor(topic string) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	var matched []Event
	for _, event := range b.events {
		if event.Topic == topic {
			matched = append(matched, event)
		}
	}
	return matched
}

func (b *recordingBroadcaster) CountByType(topic, eventType string) int {
	count := 0
	for _, event := range b.EventsFor(topic) {
		if event.Type == eventType {
			count++
		}
	}
	return count
}
