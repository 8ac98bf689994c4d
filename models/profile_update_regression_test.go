package models_test

import (
	"testing"

	"github.com/riceworks/millbooks_backend/models"
)

func TestUpdateMillChangesTimezone(t *testing.T) {
	ctx, mill := setupIntegrationMill(t)
	millId := mill.ID.String()

	updated, err := models.UpdateMill(ctx, millId, &models.NewMill{
		Name:     mill.Name,
		Timezone: "Asia/Kolkata",
	})
	if err != nil {
		t.Fatalf("UpdateMill: %v", err)
	}

	fetched, err := models.GetMill(ctx, millId)
	if err != nil {
		t.Fatalf("GetMill: %v", err)
	}
	if fetched.Timezone != "Asia/Kolkata" {
		t.Fatalf("timezone = %q, want Asia/Kolkata", fetched.Timezone)
	}

	// An omitted timezone keeps the stored one.
	if _, err := models.UpdateMill(ctx, millId, &models.NewMill{Name: updated.Name}); err != nil {
		t.Fatalf("UpdateMill: %v", err)
	}
	fetched, err = models.GetMill(ctx, millId)
	if err != nil {
		t.Fatalf("GetMill: %v", err)
	}
	if fetched.Timezone != "Asia/Kolkata" {
		t.Fatalf("timezone after no-op update = %q, want Asia/Kolkata", fetched.Timezone)
	}
}

func TestUpdatePartyChangesType(t *testing.T) {
	ctx, _ := setupIntegrationMill(t)

	party, err := models.CreateParty(ctx, &models.NewParty{Name: "Side Trader", Type: models.PartyTypeSupplier})
	if err != nil {
		t.Fatalf("CreateParty: %v", err)
	}

	if _, err := models.UpdateParty(ctx, party.ID, &models.NewParty{
		Name: party.Name,
		Type: models.PartyTypeBoth,
	}); err != nil {
		t.Fatalf("UpdateParty: %v", err)
	}
	fetched, err := models.GetParty(ctx, party.ID)
	if err != nil {
		t.Fatalf("GetParty: %v", err)
	}
	if fetched.Type != models.PartyTypeBoth {
		t.Fatalf("party type = %s, want BOTH", fetched.Type)
	}

	// An omitted type keeps the stored one.
	if _, err := models.UpdateParty(ctx, party.ID, &models.NewParty{Name: party.Name}); err != nil {
		t.Fatalf("UpdateParty: %v", err)
	}
	fetched, err = models.GetParty(ctx, party.ID)
	if err != nil {
		t.Fatalf("GetParty: %v", err)
	}
	if fetched.Type != models.PartyTypeBoth {
		t.Fatalf("party type after no-op update = %s, want BOTH", fetched.Type)
	}
}
