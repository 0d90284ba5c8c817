package models

import (
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

const (
	KYCStatusNotStarted = "notStarted"
	KYCStatusDraft      = "draft"
	KYCStatusPending    = "pending"
	KYCStatusApproved   = "approved"
	KYCStatusRejected   = "rejected"
	KYCStatusBlocked    = "blocked" // только для отображения, в БД не хранится
	KYCStatusRevoked    = "revoked"
)

const (
	KYCFileTypeDocument = "document"
	KYCFileTypeSelfie   = "selfieWithDocument"

	KYCSideFront = "front"
	KYCSideBack  = "back"

	KYCUploadPending   = "pending"
	KYCUploadUploaded  = "uploaded"
	KYCUploadConfirmed = "confirmed"
	KYCUploadFailed    = "failed"
)

const (
	KYCDecisionApproved = "approved"
	KYCDecisionRejected = "rejected"
	KYCDecisionRevoked  = "revoked"
)

var (
	phonePattern   = regexp.MustCompile(`^\+\d{10,15}$`)
	datePattern    = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	countryPattern = regexp.MustCompile(`^[A-Z]{2}$`)
)

type KYCApplication struct {
	ID                 int64
	UserID             int64
	Status             string
	AttemptNumber      int
	Email              *string
	Phone              *string
	FirstName          *string
	LastName           *string
	MiddleName         *string
	DateOfBirth        *time.Time
	CountryOfResidence *string
	SubmittedAt        *time.Time
	ExpiresAt          *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (a *KYCApplication) IsExpiredDraft(now time.Time) bool {
	return a.Status == KYCStatusDraft && a.ExpiresAt != nil && now.After(*a.ExpiresAt)
}

type KYCFile struct {
	ID            int64
	ApplicationID int64
	FileID        string
	FileType      string
	Side          *string
	MimeType      string
	SizeBytes     int64
	StorageKey    string
	UploadStatus  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type KYCDecision struct {
	ID            int64
	ApplicationID int64
	AdminUserID   *int64
	Decision      string
	ReasonCodes   []string
	Comment       *string
	CreatedAt     time.Time
}

type KYCUserSettings struct {
	UserID        int64
	TotalAttempts int
	MaxAttempts   int
	IsBlocked     bool
	BlockedAt     *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (s *KYCUserSettings) AttemptsLeft() int {
	if left := s.MaxAttempts - s.TotalAttempts; left > 0 {
		return left
	}
	return 0
}

type KYCReasonCode struct {
	Code        string   `json:"code"`
	Type        string   `json:"type"`
	Description string   `json:"description"`
	UsedFor     []string `json:"usedFor"`
}

// ==== requests ====

type KYCProfileRequest struct {
	Email              *string `json:"email"`
	Phone              *string `json:"phone"`
	FirstName          *string `json:"firstName"`
	LastName           *string `json:"lastName"`
	MiddleName         *string `json:"middleName"`
	DateOfBirth        *string `json:"dateOfBirth"`
	CountryOfResidence *string `json:"countryOfResidence"`
}

func (r KYCProfileRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.NilOrNotEmpty.Error("Invalid email format"), is.EmailFormat.Error("Invalid email format")),
		validation.Field(&r.Phone, validation.NilOrNotEmpty, validation.Match(phonePattern).Error("Invalid phone format. Expected: +77771234567")),
		validation.Field(&r.FirstName, validation.NilOrNotEmpty.Error("First name is required"), validation.RuneLength(1, 100)),
		validation.Field(&r.LastName, validation.NilOrNotEmpty.Error("Last name is required"), validation.RuneLength(1, 100)),
		validation.Field(&r.MiddleName, validation.RuneLength(0, 100)),
		validation.Field(&r.DateOfBirth, validation.NilOrNotEmpty, validation.Match(datePattern).Error("Invalid date format. Expected: YYYY-MM-DD"), validation.Date("2006-01-02").Error("Invalid date format. Expected: YYYY-MM-DD")),
		validation.Field(&r.CountryOfResidence, validation.NilOrNotEmpty, validation.Match(countryPattern).Error("Invalid country code. Expected ISO 3166-1 alpha-2 (e.g., KZ, RU)")),
	)
}

type KYCFileInitRequest struct {
	FileType  string  `json:"fileType"`
	Side      *string `json:"side"`
	MimeType  string  `json:"mimeType"`
	SizeBytes int64   `json:"sizeBytes"`
}

func (r KYCFileInitRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.FileType, validation.Required, validation.In(KYCFileTypeDocument, KYCFileTypeSelfie).Error("Invalid fileType. Expected: document or selfieWithDocument")),
		validation.Field(&r.Side, validation.NilOrNotEmpty, validation.In(KYCSideFront, KYCSideBack).Error("Invalid side. Expected: front or back")),
		validation.Field(&r.MimeType, validation.Required),
		validation.Field(&r.SizeBytes, validation.Required.Error("File size must be a positive number"), validation.Min(int64(1)).Error("File size must be a positive number")),
	)
}

type KYCFileConfirmRequest struct {
	FileID string `json:"fileId"`
}

func (r KYCFileConfirmRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.FileID, validation.Required.Error("fileId is required")),
	)
}

type KYCAttachFilesRequest struct {
	DocumentFront      string  `json:"documentFront"`
	DocumentBack       *string `json:"documentBack"`
	SelfieWithDocument string  `json:"selfieWithDocument"`
}

func (r KYCAttachFilesRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.DocumentFront, validation.Required.Error("documentFront is required")),
		validation.Field(&r.SelfieWithDocument, validation.Required.Error("selfieWithDocument is required")),
	)
}

// FileIDs returns the referenced ids in slot order, skipping an empty documentBack.
func (r KYCAttachFilesRequest) FileIDs() []string {
	ids := []string{r.DocumentFront, r.SelfieWithDocument}
	if r.DocumentBack != nil && *r.DocumentBack != "" {
		ids = append(ids, *r.DocumentBack)
	}
	return ids
}

type KYCDecisionRequest struct {
	Decision    string   `json:"decision"`
	ReasonCodes []string `json:"reasonCodes"`
	Comment     *string  `json:"comment"`
}

func (r KYCDecisionRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Decision, validation.Required, validation.In("approve", "reject").Error("Expected: approve or reject")),
		validation.Field(&r.Comment, validation.RuneLength(0, 1000)),
	)
}

// Outcome maps the admin action onto the stored decision value.
func (r KYCDecisionRequest) Outcome() string {
	if r.Decision == "approve" {
		return KYCDecisionApproved
	}
	return KYCDecisionRejected
}

type KYCRevokeRequest struct {
	ReasonCodes []string `json:"reasonCodes"`
	Comment     *string  `json:"comment"`
}

func (r KYCRevokeRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.ReasonCodes, validation.Required.Error("At least one reason code is required")),
		validation.Field(&r.Comment, validation.RuneLength(0, 1000)),
	)
}

type KYCApplicationFilter struct {
	Status        string
	Country       string
	AttemptNumber int
	Limit         int
	Cursor        string
}

// ==== responses ====

type KYCRequirements struct {
	CanWithdraw            bool `json:"canWithdraw"`
	CanAccessSellerCabinet bool `json:"canAccessSellerCabinet"`
}

type KYCStatusResponse struct {
	Status       string          `json:"status"`
	AttemptsUsed int             `json:"attemptsUsed"`
	AttemptsLeft int             `json:"attemptsLeft"`
	Requirements KYCRequirements `json:"requirements"`
}

type KYCProfileResponse struct {
	KYCID  string `json:"kycId"`
	Status string `json:"status"`
}

type KYCFileInitResponse struct {
	FileID       string `json:"fileId"`
	UploadURL    string `json:"uploadUrl"`
	MaxSizeBytes int64  `json:"maxSizeBytes"`
}

type KYCActionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type KYCSubmitResult struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	AttemptsUsed int    `json:"attemptsUsed"`
	AttemptsLeft int    `json:"attemptsLeft"`
}

type KYCSubmitResponse struct {
	Message string          `json:"message"`
	KYC     KYCSubmitResult `json:"kyc"`
}

type KYCLatestDecisionResponse struct {
	Status      string   `json:"status"`
	ReasonCodes []string `json:"reasonCodes"`
	Comment     *string  `json:"comment"`
}

type KYCApplicationListItem struct {
	KYCID              string     `json:"kycId"`
	UserID             string     `json:"userId"`
	Status             string     `json:"status"`
	AttemptNumber      int        `json:"attemptNumber"`
	CreatedAt          time.Time  `json:"createdAt"`
	SubmittedAt        *time.Time `json:"submittedAt"`
	FullName           string     `json:"fullName"`
	DateOfBirth        *string    `json:"dateOfBirth"`
	CountryOfResidence *string    `json:"countryOfResidence"`
}

type CursorPagination struct {
	Limit      int     `json:"limit"`
	NextCursor *string `json:"nextCursor"`
}

type KYCApplicationListResponse struct {
	Items      []KYCApplicationListItem `json:"items"`
	Pagination CursorPagination         `json:"pagination"`
}

type KYCProfile struct {
	Email              *string `json:"email"`
	Phone              *string `json:"phone"`
	FirstName          *string `json:"firstName"`
	LastName           *string `json:"lastName"`
	MiddleName         *string `json:"middleName"`
	DateOfBirth        *string `json:"dateOfBirth"`
	CountryOfResidence *string `json:"countryOfResidence"`
}

type KYCDocument struct {
	FileID    string  `json:"fileId"`
	FileType  string  `json:"fileType"`
	Side      *string `json:"side,omitempty"`
	MimeType  string  `json:"mimeType"`
	SizeBytes int64   `json:"sizeBytes"`
	ViewURL   string  `json:"viewUrl"`
}

type KYCApplicationDetails struct {
	KYCID         string                 `json:"kycId"`
	UserID        string                 `json:"userId"`
	Status        string                 `json:"status"`
	AttemptNumber int                    `json:"attemptNumber"`
	CreatedAt     time.Time              `json:"createdAt"`
	SubmittedAt   *time.Time             `json:"submittedAt"`
	Profile       KYCProfile             `json:"profile"`
	Documents     map[string]KYCDocument `json:"documents"`
}

type KYCReasonCodeListResponse struct {
	Items []KYCReasonCode `json:"items"`
}
