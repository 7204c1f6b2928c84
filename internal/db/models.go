package db

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// base contains the fields shared by all domain models: an autoincrement
// integer primary key, an opaque UUID handle used by clients for idempotent
// references, and GORM-managed timestamps.
type base struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	UUID      string    `gorm:"type:text;uniqueIndex;not null" json:"uuid"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

// BeforeCreate assigns the UUID handle if the caller did not provide one.
func (b *base) BeforeCreate(tx *gorm.DB) error {
	if b.UUID == "" {
		b.UUID = uuid.NewString()
	}
	return nil
}

// authored extends base with the username of the creator and last editor.
type authored struct {
	base
	CreatedBy string `gorm:"type:text;default:''" json:"created_by"`
	UpdatedBy string `gorm:"type:text;default:''" json:"updated_by"`
}

// -----------------------------------------------------------------------------
// Users, roles, sessions
// -----------------------------------------------------------------------------

// Role is a named bundle of boolean capabilities. The seven seed roles are
// created on first start; only manage_rights holders may edit them.
type Role struct {
	ID          int64  `gorm:"primaryKey" json:"id"`
	Name        string `gorm:"uniqueIndex;not null" json:"name"`
	Description string `gorm:"default:''" json:"description"`

	ViewPlanning              bool `gorm:"not null;default:true" json:"view_planning"`
	EditPlanning              bool `gorm:"not null;default:false" json:"edit_planning"`
	ViewDrivers               bool `gorm:"not null;default:true" json:"view_drivers"`
	ManageDrivers             bool `gorm:"not null;default:false" json:"manage_drivers"`
	EditDriverPlanning        bool `gorm:"not null;default:false" json:"edit_driver_planning"`
	ManageRights              bool `gorm:"not null;default:false" json:"manage_rights"`
	ManageVoyages             bool `gorm:"not null;default:false" json:"manage_voyages"`
	GeneratePlanning          bool `gorm:"not null;default:false" json:"generate_planning"`
	EditPastPlanning          bool `gorm:"not null;default:false" json:"edit_past_planning"`
	EditPastPlanningAdvanced  bool `gorm:"not null;default:false" json:"edit_past_planning_advanced"`
	ViewFinance               bool `gorm:"not null;default:false" json:"view_finance"`
	ManageFinance             bool `gorm:"not null;default:false" json:"manage_finance"`
	ViewAnalyse               bool `gorm:"not null;default:false" json:"view_analyse"`
	ViewSauron                bool `gorm:"not null;default:false" json:"view_sauron"`
	SendAnnouncements         bool `gorm:"not null;default:false" json:"send_announcements"`
	ManageAnnouncementsConfig bool `gorm:"not null;default:false" json:"manage_announcements_config"`
	AdminAccess               bool `gorm:"not null;default:false" json:"admin_access"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Role) TableName() string { return "user_roles" }

// User is an account on the planning server. Usernames are stored normalized
// (upper-case, domain prefix stripped). A system admin has every capability
// regardless of role.
type User struct {
	ID          int64  `gorm:"primaryKey" json:"id"`
	Username    string `gorm:"uniqueIndex;not null" json:"username"`
	DisplayName string `gorm:"default:''" json:"display_name"`
	Email       string `gorm:"default:''" json:"email"`

	PasswordHash       string     `gorm:"not null;default:''" json:"-"`
	MustChangePassword bool       `gorm:"not null;default:false" json:"must_change_password"`
	FailedAttempts     int        `gorm:"not null;default:0" json:"-"`
	LockedUntil        *time.Time `json:"-"`

	IsActive      bool `gorm:"not null;default:true" json:"is_active"`
	IsSystemAdmin bool `gorm:"not null;default:false" json:"is_system_admin"`

	RoleID *int64 `json:"-"`
	Role   *Role  `gorm:"foreignKey:RoleID" json:"-"`

	LastLogin *time.Time `json:"last_login"`
	CreatedAt time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time  `gorm:"not null" json:"updated_at"`
}

// Session is a server-side record of a logged-in user. The session_id is an
// opaque random string embedded in the signed token; a session is valid only
// while it is active, unexpired, and its user is active.
type Session struct {
	ID        int64  `gorm:"primaryKey" json:"id"`
	SessionID string `gorm:"uniqueIndex;not null" json:"session_id"`
	UserID    int64  `gorm:"not null;index" json:"user_id"`
	User      *User  `gorm:"foreignKey:UserID" json:"-"`

	ClientIP       string `gorm:"default:''" json:"client_ip"`
	ClientHostname string `gorm:"default:''" json:"client_hostname"`
	UserAgent      string `gorm:"default:''" json:"user_agent"`

	CreatedAt    time.Time `gorm:"not null" json:"created_at"`
	LastActivity time.Time `gorm:"not null" json:"last_activity"`
	ExpiresAt    time.Time `gorm:"not null;index" json:"expires_at"`
	IsActive     bool      `gorm:"not null;default:true" json:"is_active"`
}

func (Session) TableName() string { return "user_sessions" }

// -----------------------------------------------------------------------------
// Voyages
// -----------------------------------------------------------------------------

// Voyage is a transport line template missions can reference. Codes are stored
// upper-case and unique; deletion is a soft deactivation so existing missions
// keep a valid reference.
type Voyage struct {
	authored
	Code        string `gorm:"uniqueIndex;not null" json:"code"`
	Nom         string `gorm:"not null" json:"nom"`
	Description string `gorm:"type:text;default:''" json:"description"`

	Depart      string `gorm:"default:''" json:"depart"`
	Destination string `gorm:"default:''" json:"destination"`
	Pays        string `gorm:"default:''" json:"pays"`

	HeureDepartDefaut  string `gorm:"default:''" json:"heure_depart_defaut"`
	HeureArriveeDefaut string `gorm:"default:''" json:"heure_arrivee_defaut"`

	// JoursOperation is a JSON array of weekday names, e.g. ["lundi","mardi"].
	JoursOperation  string `gorm:"type:text;default:'[]'" json:"jours_operation"`
	NbPalettesMoyen int    `gorm:"not null;default:0" json:"nb_palettes_moyen"`
	IsActive        bool   `gorm:"not null;default:true" json:"is_active"`
	Couleur         string `gorm:"default:''" json:"couleur"`
}

// -----------------------------------------------------------------------------
// Chauffeurs
// -----------------------------------------------------------------------------

// Chauffeur is an in-house driver. Soft-delete only.
type Chauffeur struct {
	authored
	Code   string `gorm:"uniqueIndex;not null" json:"code"`
	Nom    string `gorm:"not null" json:"nom"`
	Prenom string `gorm:"not null" json:"prenom"`

	Telephone string `gorm:"default:''" json:"telephone"`
	Email     string `gorm:"default:''" json:"email"`

	TypeContrat  string `gorm:"default:''" json:"type_contrat"`
	DateEmbauche *Date  `gorm:"type:date" json:"date_embauche"`

	Permis string `gorm:"default:''" json:"permis"`
	ADR    bool   `gorm:"not null;default:false" json:"adr"`
	FIMO   bool   `gorm:"not null;default:true" json:"fimo"`

	TracteurAttitre string `gorm:"default:''" json:"tracteur_attire"`
	IsActive        bool   `gorm:"not null;default:true" json:"is_active"`
	Commentaire     string `gorm:"type:text;default:''" json:"commentaire"`
}

// NomComplet returns "Prenom Nom", the display form used by clients.
func (c *Chauffeur) NomComplet() string {
	return c.Prenom + " " + c.Nom
}

// ChauffeurDispo records an unavailability window (inclusive on both ends).
// A driver is available on a date iff no window covers it.
type ChauffeurDispo struct {
	ID          int64      `gorm:"primaryKey" json:"id"`
	ChauffeurID int64      `gorm:"not null;index" json:"chauffeur_id"`
	Chauffeur   *Chauffeur `gorm:"foreignKey:ChauffeurID" json:"-"`

	DateDebut   Date   `gorm:"type:date;not null;index" json:"date_debut"`
	DateFin     Date   `gorm:"type:date;not null;index" json:"date_fin"`
	TypeAbsence string `gorm:"not null" json:"type_absence"`
	Motif       string `gorm:"default:''" json:"motif"`

	CreatedBy string    `gorm:"default:''" json:"created_by"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (ChauffeurDispo) TableName() string { return "chauffeur_dispo" }

// -----------------------------------------------------------------------------
// Subcontractors
// -----------------------------------------------------------------------------

// SST is an external carrier used when in-house capacity is exhausted.
type SST struct {
	authored
	Code          string `gorm:"uniqueIndex;not null" json:"code"`
	Nom           string `gorm:"not null" json:"nom"`
	RaisonSociale string `gorm:"default:''" json:"raison_sociale"`

	Telephone string `gorm:"default:''" json:"telephone"`
	Email     string `gorm:"default:''" json:"email"`
	Adresse   string `gorm:"type:text;default:''" json:"adresse"`

	IsActive    bool   `gorm:"not null;default:true" json:"is_active"`
	Commentaire string `gorm:"type:text;default:''" json:"commentaire"`
}

func (SST) TableName() string { return "sst" }

// TarifSST prices a subcontractor for a destination. Unite selects the
// pricing unit: per trip ("voyage"), per pallet ("palette") or per km ("km").
type TarifSST struct {
	ID    int64 `gorm:"primaryKey" json:"id"`
	SSTID int64 `gorm:"column:sst_id;not null;index" json:"sst_id"`
	SST   *SST  `gorm:"foreignKey:SSTID" json:"-"`

	Destination string  `gorm:"not null;index" json:"destination"`
	Pays        string  `gorm:"default:''" json:"pays"`
	Prix        float64 `gorm:"not null" json:"prix"`
	Unite       string  `gorm:"not null;default:'voyage'" json:"unite"`

	DateDebut *Date `gorm:"type:date" json:"date_debut"`
	DateFin   *Date `gorm:"type:date" json:"date_fin"`
	IsActive  bool  `gorm:"not null;default:true" json:"is_active"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (TarifSST) TableName() string { return "tarifs_sst" }

// SSTEmail is a contact address attached to a subcontractor.
type SSTEmail struct {
	ID    int64 `gorm:"primaryKey" json:"id"`
	SSTID int64 `gorm:"column:sst_id;not null;index" json:"sst_id"`

	Email      string `gorm:"not null" json:"email"`
	NomContact string `gorm:"default:''" json:"nom_contact"`
	Fonction   string `gorm:"default:''" json:"fonction"`
	IsPrimary  bool   `gorm:"not null;default:false" json:"is_primary"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (SSTEmail) TableName() string { return "sst_emails" }

// -----------------------------------------------------------------------------
// Finance
// -----------------------------------------------------------------------------

// RevenuPalette is the per-destination unit revenue used to estimate mission
// revenue, with an optional validity window.
type RevenuPalette struct {
	ID int64 `gorm:"primaryKey" json:"id"`

	Destination      string  `gorm:"not null;index" json:"destination"`
	Pays             string  `gorm:"default:''" json:"pays"`
	RevenuParPalette float64 `gorm:"not null" json:"revenu_par_palette"`

	DateDebut *Date `gorm:"type:date" json:"date_debut"`
	DateFin   *Date `gorm:"type:date" json:"date_fin"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (RevenuPalette) TableName() string { return "revenus_palettes" }

// -----------------------------------------------------------------------------
// Missions
// -----------------------------------------------------------------------------

// Mission statuses and kinds form closed sets; the api layer validates
// membership before anything reaches the store.
const (
	MissionPlanifie = "planifie"
	MissionEnCours  = "en_cours"
	MissionTermine  = "termine"
	MissionAnnule   = "annule"

	MissionLivraison = "livraison"
	MissionRamasse   = "ramasse"
)

// Mission is a single delivery or pickup job on a specific date. Times are
// HH:MM strings; heure_debut must not exceed heure_fin when both are set.
type Mission struct {
	authored
	DateMission Date   `gorm:"type:date;not null;index" json:"date_mission"`
	HeureDebut  string `gorm:"default:''" json:"heure_debut"`
	HeureFin    string `gorm:"default:''" json:"heure_fin"`

	VoyageID    *int64 `json:"voyage_id"`
	ChauffeurID *int64 `json:"chauffeur_id"`
	SSTID       *int64 `gorm:"column:sst_id" json:"sst_id"`

	TypeMission string `gorm:"default:''" json:"type_mission"`
	Destination string `gorm:"default:''" json:"destination"`
	Depart      string `gorm:"default:''" json:"depart"`
	Pays        string `gorm:"default:''" json:"pays"`

	NbPalettes int      `gorm:"not null;default:0" json:"nb_palettes"`
	PoidsKg    *float64 `json:"poids_kg"`

	Tracteur string `gorm:"default:''" json:"tracteur"`
	Remorque string `gorm:"default:''" json:"remorque"`

	Statut      string `gorm:"not null;default:'planifie'" json:"statut"`
	Commentaire string `gorm:"type:text;default:''" json:"commentaire"`

	CoutSST *float64 `gorm:"column:cout_sst" json:"cout_sst"`
	Revenu  *float64 `json:"revenu"`
}

// -----------------------------------------------------------------------------
// Audit and request logs
// -----------------------------------------------------------------------------

// Audit action names. Closed set; anything else is a programming error.
const (
	ActionLogin           = "LOGIN"
	ActionLoginFailed     = "LOGIN_FAILED"
	ActionLogout          = "LOGOUT"
	ActionPasswordChanged = "PASSWORD_CHANGED"
	ActionPasswordReset   = "PASSWORD_RESET"
	ActionForceDisconnect = "FORCE_DISCONNECT"
	ActionCreate          = "CREATE"
	ActionUpdate          = "UPDATE"
	ActionDelete          = "DELETE"
	ActionDeactivate      = "DEACTIVATE"
	ActionBulkCreate      = "BULK_CREATE"
	ActionBackupCreate    = "BACKUP_CREATE"
	ActionBackupRestore   = "BACKUP_RESTORE"
	ActionSessionKick     = "SESSION_KICK"
	ActionSessionKickAll  = "SESSION_KICK_ALL"
)

// ActivityLog is the append-only audit trail of user actions. Before/after
// snapshots are JSON documents serialized at the call site.
type ActivityLog struct {
	ID int64 `gorm:"primaryKey" json:"id"`

	Username  string `gorm:"not null;index:ix_activity_user_date" json:"username"`
	SessionID string `gorm:"default:''" json:"session_id"`

	ActionType string `gorm:"not null;index:ix_activity_type_date" json:"action_type"`
	EntityType string `gorm:"default:''" json:"entity_type"`
	EntityID   string `gorm:"default:''" json:"entity_id"`

	Details     string `gorm:"type:text;default:''" json:"details"`
	BeforeState string `gorm:"type:text;default:''" json:"before_state"`
	AfterState  string `gorm:"type:text;default:''" json:"after_state"`

	ClientIP  string `gorm:"default:''" json:"client_ip"`
	UserAgent string `gorm:"default:''" json:"user_agent"`

	CreatedAt time.Time `gorm:"not null;index;index:ix_activity_user_date;index:ix_activity_type_date" json:"created_at"`
}

// ApiRequestLog records one completed HTTP call, written outside the domain
// transaction. Retention is managed by the scheduler.
type ApiRequestLog struct {
	ID int64 `gorm:"primaryKey" json:"id"`

	Method      string `gorm:"not null" json:"method"`
	Path        string `gorm:"not null;index:ix_api_path_date" json:"path"`
	QueryParams string `gorm:"type:text;default:''" json:"query_params"`

	Username string `gorm:"default:'';index" json:"username"`
	ClientIP string `gorm:"default:''" json:"client_ip"`

	StatusCode     int    `gorm:"not null;index:ix_api_status_date" json:"status_code"`
	ResponseTimeMs *int64 `json:"response_time_ms"`
	ErrorMessage   string `gorm:"type:text;default:''" json:"error_message"`

	CreatedAt time.Time `gorm:"not null;index;index:ix_api_path_date;index:ix_api_status_date" json:"created_at"`
}
