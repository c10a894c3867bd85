package auth

// Permissions are the per-user capability flags stored with every platform account.
type Permissions struct {
	IsSuperAdmin                bool `json:"isSuperAdmin"`
	CanAddAdmin                 bool `json:"canAddAdmin"`
	CanAddUser                  bool `json:"canAddUser"`
	CanAddEmployee              bool `json:"canAddEmployee"`
	CanMessageAllGroups         bool `json:"canMessageAllGroups"`
	CanMessageInstitutionGroups bool `json:"canMessageInstitutionGroups"`
	CanReadAllGroups            bool `json:"canReadAllGroups"`
	CanReadInstitutionGroups    bool `json:"canReadInstitutionGroups"`
	CanWriteAllGroups           bool `json:"canWriteAllGroups"`
	CanWriteInstitutionGroups   bool `json:"canWriteInstitutionGroups"`
	CanMessageDirect            bool `json:"canMessageDirect"`
}

// DefaultPermissions are granted to newly created accounts.
func DefaultPermissions() Permissions {
	return Permissions{
		CanMessageInstitutionGroups: true,
		CanMessageDirect:            true,
	}
}
