package domain

import (
	"fmt"
	"strings"
)

// ClinicalContext is the complete input snapshot for one pipeline evaluation.
// It is owned by the calling request and must not be mutated while a run is in flight.
type ClinicalContext struct {
	PatientID      string          `json:"patientId"`
	Demographics   Demographics    `json:"demographics"`
	Vitals         Vitals          `json:"vitals"`
	Symptoms       []string        `json:"symptoms"`
	Medications    []Medication    `json:"medications"`
	Allergies      []string        `json:"allergies,omitempty"`
	MedicalHistory []string        `json:"medicalHistory,omitempty"`
	FamilyHistory  []string        `json:"familyHistory,omitempty"`
	LabResults     []LabResult     `json:"labResults"`
	ImagingResults []ImagingResult `json:"imagingResults,omitempty"`
	Genomics       *GenomicData    `json:"genomics,omitempty"`
}

// Demographics holds the patient attributes the risk rules read.
type Demographics struct {
	Age int    `json:"age"`
	Sex string `json:"sex,omitempty"`
}

// Vitals are all optional; a nil field contributes nothing to scoring.
type Vitals struct {
	Temperature      *float64       `json:"temperature,omitempty"` // Celsius
	HeartRate        *int           `json:"heartRate,omitempty"`
	BloodPressure    *BloodPressure `json:"bloodPressure,omitempty"`
	RespiratoryRate  *int           `json:"respiratoryRate,omitempty"`
	OxygenSaturation *float64       `json:"oxygenSaturation,omitempty"`
}

// BloodPressure in mmHg.
type BloodPressure struct {
	Systolic  int `json:"systolic"`
	Diastolic int `json:"diastolic"`
}

// Count returns how many vital signs are present.
func (v Vitals) Count() int {
	n := 0
	if v.Temperature != nil {
		n++
	}
	if v.HeartRate != nil {
		n++
	}
	if v.BloodPressure != nil {
		n++
	}
	if v.RespiratoryRate != nil {
		n++
	}
	if v.OxygenSaturation != nil {
		n++
	}
	return n
}

// Medication is an active medication on the patient's list.
type Medication struct {
	Name      string `json:"name"`
	Dosage    string `json:"dosage,omitempty"`
	Frequency string `json:"frequency,omitempty"`
	Route     string `json:"route,omitempty"`
}

// LabResult is a single laboratory observation.
type LabResult struct {
	TestName       string  `json:"testName"`
	Value          float64 `json:"value"`
	Unit           string  `json:"unit,omitempty"`
	ReferenceRange string  `json:"referenceRange,omitempty"`
	Abnormal       bool    `json:"abnormal"`
}

// ImagingResult is a radiology finding. Carried for completeness; no stage scores it.
type ImagingResult struct {
	Modality   string `json:"modality"`
	BodyPart   string `json:"bodyPart,omitempty"`
	Finding    string `json:"finding,omitempty"`
	Impression string `json:"impression,omitempty"`
}

// GenomicData is the optional genomic payload.
type GenomicData struct {
	Variants         []GeneticVariant            `json:"variants,omitempty"`
	Pharmacogenomics []PharmacogenomicAnnotation `json:"pharmacogenomics,omitempty"`
}

// GeneticVariant is a reported variant.
type GeneticVariant struct {
	Gene         string `json:"gene"`
	Variant      string `json:"variant"`
	Zygosity     string `json:"zygosity,omitempty"`
	Significance string `json:"significance,omitempty"`
}

// PharmacogenomicAnnotation links a gene phenotype to a drug. Annotations carrying a
// Severity are surfaced by the interaction checker; the rest are informational.
type PharmacogenomicAnnotation struct {
	Gene           string              `json:"gene"`
	Drug           string              `json:"drug"`
	Phenotype      string              `json:"phenotype,omitempty"`
	Severity       InteractionSeverity `json:"severity,omitempty"`
	Recommendation string              `json:"recommendation,omitempty"`
}

// Validate rejects snapshots that cannot describe a real patient.
// Absent fields are never an error.
func (c *ClinicalContext) Validate() error {
	if c == nil {
		return NewValidationError("context", "clinical context is required", nil)
	}
	if c.Demographics.Age < 0 || c.Demographics.Age > 150 {
		return NewValidationError("demographics.age", "age must be between 0 and 150", c.Demographics.Age)
	}
	if err := c.Vitals.validate(); err != nil {
		return err
	}
	for i, med := range c.Medications {
		if strings.TrimSpace(med.Name) == "" {
			return NewValidationError(fmt.Sprintf("medications[%d].name", i), "medication name is required", med.Name)
		}
	}
	for i, lab := range c.LabResults {
		if strings.TrimSpace(lab.TestName) == "" {
			return NewValidationError(fmt.Sprintf("labResults[%d].testName", i), "lab test name is required", lab.TestName)
		}
	}
	if c.Genomics != nil {
		for i, pgx := range c.Genomics.Pharmacogenomics {
			if pgx.Severity != "" && !pgx.Severity.IsValid() {
				return NewValidationError(fmt.Sprintf("genomics.pharmacogenomics[%d].severity", i), ErrInvalidSeverity.Error(), pgx.Severity)
			}
		}
	}
	return nil
}

func (v Vitals) validate() error {
	if v.Temperature != nil && *v.Temperature < 0 {
		return NewValidationError("vitals.temperature", "temperature must not be negative", *v.Temperature)
	}
	if v.HeartRate != nil && *v.HeartRate < 0 {
		return NewValidationError("vitals.heartRate", "heart rate must not be negative", *v.HeartRate)
	}
	if v.BloodPressure != nil && (v.BloodPressure.Systolic < 0 || v.BloodPressure.Diastolic < 0) {
		return NewValidationError("vitals.bloodPressure", "blood pressure must not be negative", *v.BloodPressure)
	}
	if v.RespiratoryRate != nil && *v.RespiratoryRate < 0 {
		return NewValidationError("vitals.respiratoryRate", "respiratory rate must not be negative", *v.RespiratoryRate)
	}
	if v.OxygenSaturation != nil && (*v.OxygenSaturation < 0 || *v.OxygenSaturation > 100) {
		return NewValidationError("vitals.oxygenSaturation", "oxygen saturation must be between 0 and 100", *v.OxygenSaturation)
	}
	return nil
}
