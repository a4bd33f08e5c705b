package controllers

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/apexshine/apexshine-api/config"
	"github.com/apexshine/apexshine-api/models"
	"github.com/apexshine/apexshine-api/services"
)

func setupWorkflowTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	err = db.AutoMigrate(
		&models.User{},
		&models.Vehicle{},
		&models.CatalogService{},
		&models.Booking{},
		&models.BookingServiceLine{},
		&models.Stage{},
		&models.StageImage{},
		&models.AddonRequest{},
		&models.ProcessTemplate{},
		&models.ProcessTemplateStage{},
	)
	if err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	config.SetDB(db)

	// Wire the engines against the fresh database with an in-process
	// broadcaster; individual tests swap in mocks where needed
	broadcaster := services.NewChannelBroadcaster()
	services.SetBroadcaster(broadcaster)
	services.SetImageService(nil)
	services.InitStageEngine(db, broadcaster, services.LogNotifier{})
	services.InitAddonEngine(db, broadcaster, services.LogNotifier{})
	services.InitWorkQueue(db, services.GetStageEngine(), broadcaster)

	return db
}

func setupWorkflowRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	return router
}

// workflowAuth simulates the JWT middleware for testing. It sets up the
// context exactly as the real EnsureValidToken middleware does; the role is
// resolved from the users table by the controllers themselves.
func workflowAuth(auth0ID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("user_id", auth0ID)
		c.Next()
	}
}

type workflowUsers struct {
	client models.User
	staff  models.User
	admin  models.User
}

func seedWorkflowUsers(t *testing.T, db *gorm.DB) workflowUsers {
	users := workflowUsers{
		client: models.User{Auth0ID: "auth0|client1", Name: "Cleo Client", Email: "cleo@example.com", Role: models.RoleClient},
		staff:  models.User{Auth0ID: "auth0|staff1", Name: "Sam Staff", Email: "sam@example.com", Role: models.RoleStaff},
		admin:  models.User{Auth0ID: "auth0|admin1", Name: "Ada Admin", Email: "ada@example.com", Role: models.RoleAdmin},
	}

	for _, u := range []*models.User{&users.client, &users.staff, &users.admin} {
		if err := db.Create(u).Error; err != nil {
			t.Fatalf("Failed to seed user %s: %v", u.Email, err)
		}
	}

	return users
}

func seedWorkflowTemplate(t *testing.T, db *gorm.DB, category string, stageKeys []string) models.ProcessTemplate {
	template := models.ProcessTemplate{
		Category: category,
		Name:     category + " pipeline",
	}
	if err := db.Create(&template).Error; err != nil {
		t.Fatalf("Failed to seed template: %v", err)
	}

	for i, key := range stageKeys {
		stage := models.ProcessTemplateStage{
			TemplateID:    template.ID,
			StageKey:      key,
			Name:          key,
			StageOrder:    i + 1,
			EstimatedMins: 30,
		}
		if err := db.Create(&stage).Error; err != nil {
			t.Fatalf("Failed to seed template stage %s: %v", key, err)
		}
	}

	return template
}

func seedWorkflowBooking(t *testing.T, db *gorm.DB, customer models.User, category string) models.Booking {
	vehicle := models.Vehicle{OwnerID: customer.ID, Make: "Audi", Model: "A4", Year: 2021, Plate: "APX-001"}
	if err := db.Create(&vehicle).Error; err != nil {
		t.Fatalf("Failed to seed vehicle: %v", err)
	}

	service := models.CatalogService{Title: "Full Detail", Category: category, Price: 250.0}
	if err := db.Create(&service).Error; err != nil {
		t.Fatalf("Failed to seed catalog service: %v", err)
	}

	booking := models.Booking{
		CustomerID:      customer.ID,
		VehicleID:       vehicle.ID,
		ServiceID:       service.ID,
		ServiceCategory: category,
		Status:          models.BookingConfirmed,
		Priority:        models.PriorityNormal,
		PaymentAmount:   250.0,
	}
	if err := db.Create(&booking).Error; err != nil {
		t.Fatalf("Failed to seed booking: %v", err)
	}

	return booking
}

func parseEnvelope(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	var response map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to parse response body %q: %v", w.Body.String(), err)
	}
	return response
}

func envelopeErrorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	response := parseEnvelope(t, w)
	errorData, ok := response["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("Response has no error object: %s", w.Body.String())
	}
	code, _ := errorData["code"].(string)
	return code
}

func jsonBody(t *testing.T, payload interface{}) *bytes.Buffer {
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("Failed to marshal request body: %v", err)
	}
	return bytes.NewBuffer(body)
}

// multipartImage builds a multipart body with a single "image" form file
func multipartImage(t *testing.T, filename string) (*bytes.Buffer, string) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("image", filename)
	if err != nil {
		t.Fatalf("Failed to create form file: %v", err)
	}
	if _, err := part.Write([]byte("fake image bytes")); err != nil {
		t.Fatalf("Failed to write form file: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Failed to close multipart writer: %v", err)
	}

	return body, writer.FormDataContentType()
}
