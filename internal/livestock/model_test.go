package livestock

import "testing"

func TestCreateFarmRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     CreateFarmRequest
		wantErr bool
	}{
		{"valid", CreateFarmRequest{Name: "Fazenda Boa Vista"}, false},
		{"missing name", CreateFarmRequest{OwnerName: "Maria"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			problems := tt.req.Validate()
			if (len(problems) > 0) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", problems, tt.wantErr)
			}
		})
	}
}

func TestCreateAnimalRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     CreateAnimalRequest
		wantErr bool
	}{
		{"valid", CreateAnimalRequest{Tag: "BR-0042", Species: "cattle"}, false},
		{"missing tag", CreateAnimalRequest{Species: "cattle"}, true},
		{"missing species", CreateAnimalRequest{Tag: "BR-0042"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			problems := tt.req.Validate()
			if (len(problems) > 0) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", problems, tt.wantErr)
			}
		})
	}
}
