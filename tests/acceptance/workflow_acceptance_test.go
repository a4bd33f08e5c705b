package acceptance

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/apexshine/apexshine-api/config"
	"github.com/apexshine/apexshine-api/controllers"
	"github.com/apexshine/apexshine-api/models"
	"github.com/apexshine/apexshine-api/services"
	"github.com/apexshine/apexshine-api/tests/testutil"
)

// WorkflowAcceptanceTestSuite exercises the workflow API over real HTTP,
// from stage instantiation through addon approval to booking completion
type WorkflowAcceptanceTestSuite struct {
	suite.Suite
	server *httptest.Server
	db     *gorm.DB
}

// SetupSuite runs once before all tests
func (suite *WorkflowAcceptanceTestSuite) SetupSuite() {
	gin.SetMode(gin.TestMode)
	testutil.MustSetTestEnvironment(suite.T())

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	suite.NoError(err)
	suite.db = db

	err = db.AutoMigrate(
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
	)
	suite.NoError(err)

	config.SetDB(db)

	broadcaster := services.NewChannelBroadcaster()
	services.SetBroadcaster(broadcaster)
	services.SetImageService(nil)
	stageEngine := services.InitStageEngine(db, broadcaster, services.LogNotifier{})
	services.InitAddonEngine(db, broadcaster, services.LogNotifier{})
	services.InitWorkQueue(db, stageEngine, broadcaster)

	suite.server = httptest.NewServer(suite.createRouter())
}

// TearDownSuite runs once after all tests
func (suite *WorkflowAcceptanceTestSuite) TearDownSuite() {
	suite.server.Close()
	if suite.db != nil {
		sqlDB, _ := suite.db.DB()
		if sqlDB != nil {
			sqlDB.Close()
		}
	}
}

// SetupTest runs before each test
func (suite *WorkflowAcceptanceTestSuite) SetupTest() {
	for _, table := range []string{
		"addon_requests", "booking_service_lines", "stage_images", "stages",
		"bookings", "process_template_stages", "process_templates",
		"catalog_services", "vehicles", "users",
	} {
		suite.db.Exec("DELETE FROM " + table)
	}
}

// createRouter builds the API routes with mock auth per role, so acceptance
// scenarios can switch hats without minting JWTs
func (suite *WorkflowAcceptanceTestSuite) createRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	v1 := router.Group("/api/v1")

	staff := v1.Group("", suite.mockAuthMiddleware("auth0|staff"))
	{
		staff.POST("/bookings/:id/stages", controllers.InstantiateStages)
		staff.POST("/stages/:id/start", controllers.StartStage)
		staff.POST("/stages/:id/complete", controllers.CompleteStage)
		staff.POST("/bookings/:id/addon-requests", controllers.SubmitAddon)
		staff.GET("/work-queue", controllers.GetWorkQueue)
		staff.PUT("/stages/:id/assign", controllers.AssignStage)
	}

	admin := v1.Group("/admin", suite.mockAuthMiddleware("auth0|admin"))
	{
		admin.GET("/addon-requests/pending", controllers.ListPendingAddons)
		admin.POST("/addon-requests/:id/approve", controllers.ApproveAddon)
		admin.POST("/addon-requests/:id/reject", controllers.RejectAddon)
	}

	client := v1.Group("/client", suite.mockAuthMiddleware("auth0|client"))
	{
		client.GET("/bookings/:id/stages", controllers.ListStages)
	}

	return router
}

// mockAuthMiddleware simulates authentication for acceptance testing
func (suite *WorkflowAcceptanceTestSuite) mockAuthMiddleware(auth0ID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("user_id", auth0ID)
		c.Set("access_token", "mock-token")
		c.Next()
	}
}

// makeRequest is a helper to make HTTP requests
func (suite *WorkflowAcceptanceTestSuite) makeRequest(method, path string, body interface{}) (*http.Response, map[string]interface{}) {
	var bodyReader *bytes.Reader
	if body != nil {
		bodyJSON, _ := json.Marshal(body)
		bodyReader = bytes.NewReader(bodyJSON)
	} else {
		bodyReader = bytes.NewReader([]byte{})
	}

	req, err := http.NewRequest(method, suite.server.URL+path, bodyReader)
	suite.NoError(err)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	suite.NoError(err)

	var responseData map[string]interface{}
	err = json.NewDecoder(resp.Body).Decode(&responseData)
	suite.NoError(err)
	resp.Body.Close()

	return resp, responseData
}

// seedScenario creates the users, catalog, template and one confirmed booking
func (suite *WorkflowAcceptanceTestSuite) seedScenario() (models.Booking, models.CatalogService) {
	client := models.User{Auth0ID: "auth0|client", Name: "Cleo Client", Email: "cleo@test.com", Role: models.RoleClient}
	staff := models.User{Auth0ID: "auth0|staff", Name: "Sam Staff", Email: "sam@test.com", Role: models.RoleStaff}
	admin := models.User{Auth0ID: "auth0|admin", Name: "Ada Admin", Email: "ada@test.com", Role: models.RoleAdmin}
	for _, u := range []*models.User{&client, &staff, &admin} {
		suite.NoError(suite.db.Create(u).Error)
	}

	template := models.ProcessTemplate{Category: "exterior", Name: "Exterior pipeline"}
	suite.NoError(suite.db.Create(&template).Error)
	for i, key := range []string{"wash", "polish"} {
		suite.NoError(suite.db.Create(&models.ProcessTemplateStage{
			TemplateID: template.ID, StageKey: key, Name: key, StageOrder: i + 1,
		}).Error)
	}

	vehicle := models.Vehicle{OwnerID: client.ID, Make: "Audi", Model: "A4", Plate: "APX-001"}
	suite.NoError(suite.db.Create(&vehicle).Error)
	mainService := models.CatalogService{Title: "Full Detail", Category: "exterior", Price: 250.0}
	suite.NoError(suite.db.Create(&mainService).Error)
	addonService := models.CatalogService{Title: "Engine Bay Clean", Category: "addon", Price: 80.0}
	suite.NoError(suite.db.Create(&addonService).Error)

	booking := models.Booking{
		CustomerID: client.ID, VehicleID: vehicle.ID, ServiceID: mainService.ID,
		ServiceCategory: "exterior", Status: models.BookingConfirmed,
		Priority: models.PriorityNormal, PaymentAmount: 250.0,
	}
	suite.NoError(suite.db.Create(&booking).Error)

	return booking, addonService
}

// TestStagePipeline_Acceptance walks a booking through instantiation, the
// work queue, and both stages to completion
func (suite *WorkflowAcceptanceTestSuite) TestStagePipeline_Acceptance() {
	booking, _ := suite.seedScenario()

	// Staff instantiates the pipeline
	resp, respData := suite.makeRequest("POST", fmt.Sprintf("/api/v1/bookings/%d/stages", booking.ID), nil)
	assert.Equal(suite.T(), http.StatusCreated, resp.StatusCode)
	stages := respData["data"].([]interface{})
	assert.Equal(suite.T(), 2, len(stages))
	firstID := int(stages[0].(map[string]interface{})["id"].(float64))
	secondID := int(stages[1].(map[string]interface{})["id"].(float64))

	// The booking shows up in the work queue at its first stage
	resp, respData = suite.makeRequest("GET", "/api/v1/work-queue", nil)
	assert.Equal(suite.T(), http.StatusOK, resp.StatusCode)
	queueData := respData["data"].(map[string]interface{})
	assert.Equal(suite.T(), float64(1), queueData["count"])
	item := queueData["items"].([]interface{})[0].(map[string]interface{})
	assert.Equal(suite.T(), "wash", item["stage_key"])
	assert.Equal(suite.T(), "Audi A4 (APX-001)", item["vehicle_label"])

	// Work both stages
	for _, stageID := range []int{firstID, secondID} {
		resp, _ = suite.makeRequest("POST", fmt.Sprintf("/api/v1/stages/%d/start", stageID), nil)
		assert.Equal(suite.T(), http.StatusOK, resp.StatusCode)
		resp, _ = suite.makeRequest("POST", fmt.Sprintf("/api/v1/stages/%d/complete", stageID), map[string]interface{}{"notes": "done"})
		assert.Equal(suite.T(), http.StatusOK, resp.StatusCode)
	}

	// The customer sees the finished pipeline; the booking rolled forward
	resp, respData = suite.makeRequest("GET", fmt.Sprintf("/api/v1/client/bookings/%d/stages", booking.ID), nil)
	assert.Equal(suite.T(), http.StatusOK, resp.StatusCode)
	clientData := respData["data"].(map[string]interface{})
	assert.Nil(suite.T(), clientData["current_stage_id"])

	var finished models.Booking
	suite.NoError(suite.db.First(&finished, booking.ID).Error)
	assert.Equal(suite.T(), models.BookingCompleted, finished.Status)
}

// TestAddonApproval_Acceptance covers the submit, review queue, approve and
// reject paths over HTTP
func (suite *WorkflowAcceptanceTestSuite) TestAddonApproval_Acceptance() {
	booking, addonService := suite.seedScenario()

	submitPath := fmt.Sprintf("/api/v1/bookings/%d/addon-requests", booking.ID)
	submitBody := map[string]interface{}{"service_id": addonService.ID, "price": 85.0}

	// Staff proposes the addon
	resp, respData := suite.makeRequest("POST", submitPath, submitBody)
	assert.Equal(suite.T(), http.StatusCreated, resp.StatusCode)
	requestData := respData["data"].(map[string]interface{})
	requestID := int(requestData["id"].(float64))
	assert.Equal(suite.T(), models.AddonPending, requestData["status"])

	// A duplicate proposal for the same service is rejected
	resp, respData = suite.makeRequest("POST", submitPath, submitBody)
	assert.Equal(suite.T(), http.StatusConflict, resp.StatusCode)
	errorData := respData["error"].(map[string]interface{})
	assert.Equal(suite.T(), services.CodeDuplicateActiveRequest, errorData["code"])

	// The admin finds it in the review queue
	resp, respData = suite.makeRequest("GET", "/api/v1/admin/addon-requests/pending", nil)
	assert.Equal(suite.T(), http.StatusOK, resp.StatusCode)
	pendingData := respData["data"].(map[string]interface{})
	assert.Equal(suite.T(), float64(1), pendingData["count"])

	// Approval creates the billable line
	resp, _ = suite.makeRequest("POST", fmt.Sprintf("/api/v1/admin/addon-requests/%d/approve", requestID), nil)
	assert.Equal(suite.T(), http.StatusOK, resp.StatusCode)

	var lines int64
	suite.db.Model(&models.BookingServiceLine{}).Where("booking_id = ?", booking.ID).Count(&lines)
	assert.Equal(suite.T(), int64(1), lines)

	// Approving again is a conflict
	resp, respData = suite.makeRequest("POST", fmt.Sprintf("/api/v1/admin/addon-requests/%d/approve", requestID), nil)
	assert.Equal(suite.T(), http.StatusConflict, resp.StatusCode)
	errorData = respData["error"].(map[string]interface{})
	assert.Equal(suite.T(), services.CodeAlreadyReviewed, errorData["code"])
}

// TestRunWorkflowAcceptanceSuite runs the test suite
func TestWorkflowAcceptanceTestSuite(t *testing.T) {
	if os.Getenv("SKIP_ACCEPTANCE_TESTS") == "true" {
		t.Skip("Skipping workflow acceptance tests")
	}

	suite.Run(t, new(WorkflowAcceptanceTestSuite))
}
