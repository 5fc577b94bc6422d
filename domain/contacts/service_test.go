package contacts

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/suite"
	"github.com/uptrace/bun"

	"github.com/hrm-platform/hrm-service/domain/contactjobs"
	"github.com/hrm-platform/hrm-service/domain/conversationmedia"
	"github.com/hrm-platform/hrm-service/internal/config"
	"github.com/hrm-platform/hrm-service/internal/testutil"
	"github.com/hrm-platform/hrm-service/pkg/apperror"
)

// failingJobs refuses to create jobs.
type failingJobs struct {
	contactjobs.Store
}

func (failingJobs) Create(context.Context, bun.IDB, contactjobs.CreateParams) (*contactjobs.ContactJob, error) {
	return nil, errors.New("job store unavailable")
}

type ServiceSuite struct {
	testutil.DBSuite
	jobs  *contactjobs.Repository
	media *conversationmedia.Repository
	svc   *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupSuite() {
	s.SetDBSuffix("contacts")
	s.DBSuite.SetupSuite()
	s.jobs = contactjobs.NewRepository(s.DB(), slog.Default())
	s.media = conversationmedia.NewRepository(s.DB(), slog.Default())
	s.svc = s.newService(s.jobs)
}

func (s *ServiceSuite) newService(jobs contactjobs.Store) *Service {
	return NewService(s.DB(), NewRepository(s.DB(), slog.Default()), s.media, jobs, slog.Default())
}

func transcriptInput() CreateContactInput {
	return CreateContactInput{
		AccountSID: testutil.TestAccountSID,
		TaskID:     "WT123",
		Channel:    "voice",
		RawJSON:    json.RawMessage(`{"callType":"Child calling about self"}`),
		CreatedBy:  "WK1",
		ConversationMedia: []MediaInput{
			{StoreType: conversationmedia.StoreTypeS3, StoreTypeSpecificData: conversationmedia.SpecificData{Type: conversationmedia.MediaTypeTranscript}},
			{StoreType: conversationmedia.StoreTypeTwilio, StoreTypeSpecificData: conversationmedia.SpecificData{Type: conversationmedia.MediaTypeRecording, ReservationSID: "WR1"}},
		},
	}
}

func (s *ServiceSuite) pendingJobs() []*contactjobs.ContactJob {
	var jobs []*contactjobs.ContactJob
	err := s.DB().NewSelect().Model(&jobs).Scan(s.Ctx)
	s.Require().NoError(err)
	return jobs
}

func (s *ServiceSuite) TestCreateContact_QueuesTranscriptJob() {
	contact, err := s.svc.CreateContact(s.Ctx, transcriptInput())
	s.Require().NoError(err)
	s.NotEmpty(contact.ID)
	s.Require().Len(contact.ConversationMedia, 2)
	transcript := contact.ConversationMedia[0]

	jobs := s.pendingJobs()
	s.Require().Len(jobs, 1, "only the S3 transcript gets a job")
	job := jobs[0]
	s.Equal(contactjobs.JobTypeRetrieveTranscript, job.JobType)
	s.Equal(contact.ID, job.ContactID)
	s.Equal(testutil.TestAccountSID, job.AccountSID)
	s.JSONEq(`{"conversationMediaId":"`+transcript.ID+`"}`, string(job.AdditionalPayload))

	var snap contactjobs.Snapshot
	s.Require().NoError(json.Unmarshal(job.Resource, &snap))
	s.Require().NotNil(snap.ConversationMedia)
	s.Equal(transcript.ID, snap.ConversationMedia.ID)

	var snapContact Contact
	s.Require().NoError(json.Unmarshal(snap.Contact, &snapContact))
	s.Equal(contact.ID, snapContact.ID)
	s.Equal("WT123", snapContact.TaskID)
	s.Empty(snapContact.ConversationMedia)
}

func (s *ServiceSuite) TestCreateContact_RollsBackOnJobFailure() {
	svc := s.newService(failingJobs{Store: s.jobs})

	_, err := svc.CreateContact(s.Ctx, transcriptInput())
	s.Require().Error(err)

	count, err := s.DB().NewSelect().Model((*Contact)(nil)).Count(s.Ctx)
	s.Require().NoError(err)
	s.Zero(count)
	count, err = s.DB().NewSelect().Model((*conversationmedia.ConversationMedia)(nil)).Count(s.Ctx)
	s.Require().NoError(err)
	s.Zero(count)
	s.Empty(s.pendingJobs())
}

func (s *ServiceSuite) TestCreateContact_Validation() {
	tests := []struct {
		name string
		edit func(in *CreateContactInput)
		want error
	}{
		{"missing account", func(in *CreateContactInput) { in.AccountSID = "" }, apperror.ErrBadRequest},
		{"media without type", func(in *CreateContactInput) {
			in.ConversationMedia[0].StoreTypeSpecificData.Type = ""
		}, apperror.ErrValidation},
		{"bad raw json", func(in *CreateContactInput) { in.RawJSON = json.RawMessage(`{`) }, apperror.ErrBadRequest},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			in := transcriptInput()
			tt.edit(&in)
			_, err := s.svc.CreateContact(s.Ctx, in)
			s.ErrorIs(err, tt.want)
		})
	}
}

func (s *ServiceSuite) TestGetContact() {
	created, err := s.svc.CreateContact(s.Ctx, transcriptInput())
	s.Require().NoError(err)

	got, err := s.svc.GetContact(s.Ctx, testutil.TestAccountSID, created.ID)
	s.Require().NoError(err)
	s.Equal(created.ID, got.ID)
	s.JSONEq(`{"callType":"Child calling about self"}`, string(got.RawJSON))
	s.Len(got.ConversationMedia, 2)

	_, err = s.svc.GetContact(s.Ctx, "AC-other", created.ID)
	s.ErrorIs(err, apperror.ErrContactNotFound)
}

func (s *ServiceSuite) TestRoutes() {
	e := echo.New()
	e.HTTPErrorHandler = apperror.HTTPErrorHandler(slog.Default())
	RegisterRoutes(e, NewHandler(s.svc), &config.Config{AdminAPIKey: "secret"}, slog.Default())

	body := `{"channel":"web","conversationMedia":[{"storeType":"S3","storeTypeSpecificData":{"type":"transcript"}}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/accounts/"+testutil.TestAccountSID+"/contacts", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(echo.HeaderAuthorization, "Bearer secret")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())

	var created Contact
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &created))
	s.Equal(testutil.TestAccountSID, created.AccountSID)
	s.Len(s.pendingJobs(), 1)

	req = httptest.NewRequest(http.MethodGet, "/api/accounts/"+testutil.TestAccountSID+"/contacts/"+created.ID, nil)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	s.Equal(http.StatusBadRequest, rec.Code, "missing key")
}
