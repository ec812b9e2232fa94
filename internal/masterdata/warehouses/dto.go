package warehouses

// Input is the writable subset of a warehouse. Nil fields keep their current value.
type Input struct {
	Name          *string `json:"name"`
	Code          *string `json:"code"`
	Address       *string `json:"address"`
	Phone         *string `json:"phone"`
	ContactPerson *string `json:"contact_person"`
	IsActive      *bool   `json:"is_active"`
	IsDefault     *bool   `json:"is_default"`
}

func (in Input) apply(w Warehouse) Warehouse {
	if in.Name != nil {
		w.Name = *in.Name
	}
	if in.Code != nil {
		w.Code = *in.Code
	}
	if in.Address != nil {
		w.Address = *in.Address
	}
	if in.Phone != nil {
		w.Phone = *in.Phone
	}
	if in.ContactPerson != nil {
		w.ContactPerson = *in.ContactPerson
	}
	if in.IsActive != nil {
		w.IsActive = *in.IsActive
	}
	if in.IsDefault != nil {
		w.IsDefault = *in.IsDefault
	}
	return w
}
