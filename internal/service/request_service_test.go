package service

import (
	"sync"
	"testing"

	"github.com/Baaaki/mealmender/internal/models"
	"github.com/Baaaki/mealmender/internal/testutil"
	"github.com/Baaaki/mealmender/pkg/apperror"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
)

type RequestServiceTestSuite struct {
	serviceSuite
}

func TestRequestServiceTestSuite(t *testing.T) {
	suite.Run(t, new(RequestServiceTestSuite))
}

func (s *RequestServiceTestSuite) TestClaim_CreatesPendingRequest() {
	d := testutil.CreateDonation(s.T(), s.db, s.donor.ID)

	req, err := s.requests.Claim(s.ctx, d.ID, s.recipient.ID, ClaimInput{
		RequestedQuantity:   testutil.Float(5),
		SpecialRequirements: "  no nuts ",
	})

	s.Require().NoError(err)
	s.Equal(models.RequestPending, req.Status)
	s.Equal(s.donor.ID, req.DonorID, "donor is copied from the donation")
	s.Equal(models.DeliveryNotDecided, req.DeliveryMethod)
	s.Equal("no nuts", req.SpecialRequirements)
	s.False(req.ContactShared)
	s.Equal(models.DonationAvailable, s.reloadDonation(d).Status, "claim must not touch the donation")
}

func (s *RequestServiceTestSuite) TestClaim_Guards() {
	available := testutil.CreateDonation(s.T(), s.db, s.donor.ID)
	claimed := testutil.CreateDonation(s.T(), s.db, s.donor.ID, testutil.WithStatus(models.DonationClaimed))

	_, err := s.requests.Claim(s.ctx, uuid.New(), s.recipient.ID, ClaimInput{})
	testutil.RequireCode(s.T(), err, apperror.CodeNotFound)

	_, err = s.requests.Claim(s.ctx, claimed.ID, s.recipient.ID, ClaimInput{})
	testutil.RequireCode(s.T(), err, apperror.CodeFailedPrecondition)

	// State is checked before ownership.
	_, err = s.requests.Claim(s.ctx, claimed.ID, s.donor.ID, ClaimInput{})
	testutil.RequireCode(s.T(), err, apperror.CodeFailedPrecondition)

	_, err = s.requests.Claim(s.ctx, available.ID, s.donor.ID, ClaimInput{})
	s.ErrorIs(err, ErrSelfClaim)

	_, err = s.requests.Claim(s.ctx, available.ID, s.recipient.ID, ClaimInput{DeliveryMethod: "Teleport"})
	testutil.RequireCode(s.T(), err, apperror.CodeInvalidArgument)

	s.Zero(s.count(&models.Request{}, "1 = 1"), "failed guards must not create requests")
}

func (s *RequestServiceTestSuite) TestClaim_DuplicatePairConflicts() {
	d := testutil.CreateDonation(s.T(), s.db, s.donor.ID)

	_, err := s.requests.Claim(s.ctx, d.ID, s.recipient.ID, ClaimInput{})
	s.Require().NoError(err)

	_, err = s.requests.Claim(s.ctx, d.ID, s.recipient.ID, ClaimInput{})
	s.ErrorIs(err, ErrAlreadyRequested)
	testutil.RequireCode(s.T(), err, apperror.CodeAlreadyExists)
}

func (s *RequestServiceTestSuite) TestClaim_UniqueIndexBacksTheCheck() {
	d := testutil.CreateDonation(s.T(), s.db, s.donor.ID)
	testutil.CreateRequest(s.T(), s.db, d, s.recipient.ID, models.RequestPending)

	dup := &models.Request{DonationID: d.ID, DonorID: s.donor.ID, RecipientID: s.recipient.ID}
	err := s.store.Requests.Create(s.ctx, dup)

	s.Error(err)
	s.True(isDuplicate(err))
}

func (s *RequestServiceTestSuite) TestApprove_RejectsOtherPendingAndClaimsDonation() {
	d := testutil.CreateDonation(s.T(), s.db, s.donor.ID)
	a := testutil.CreateRequest(s.T(), s.db, d, s.recipient.ID, models.RequestPending)
	b := testutil.CreateRequest(s.T(), s.db, d, s.other.ID, models.RequestPending)

	approved, err := s.requests.SetStatus(s.ctx, a.ID, s.donor.ID, models.RequestApproved)

	s.Require().NoError(err)
	s.Equal(models.RequestApproved, approved.Status)
	s.True(approved.ContactShared)
	s.NotNil(approved.TrackingStatus.Accepted)

	s.Equal(models.DonationClaimed, s.reloadDonation(d).Status)

	rejected := s.reloadRequest(b)
	s.Equal(models.RequestRejected, rejected.Status)
	s.False(rejected.ContactShared)
}

func (s *RequestServiceTestSuite) TestApprove_FailsWhenDonationNoLongerAvailable() {
	d := testutil.CreateDonation(s.T(), s.db, s.donor.ID)
	a := testutil.CreateRequest(s.T(), s.db, d, s.recipient.ID, models.RequestPending)
	late := testutil.CreateRequest(s.T(), s.db, d, s.other.ID, models.RequestPending)

	_, err := s.requests.SetStatus(s.ctx, a.ID, s.donor.ID, models.RequestApproved)
	s.Require().NoError(err)

	// A third request slipped in as Pending; approving it must fail and change nothing.
	third := testutil.CreateUser(s.T(), s.db, "third", models.RoleRecipient)
	c := testutil.CreateRequest(s.T(), s.db, d, third.ID, models.RequestPending)

	_, err = s.requests.SetStatus(s.ctx, c.ID, s.donor.ID, models.RequestApproved)
	testutil.RequireCode(s.T(), err, apperror.CodeFailedPrecondition)

	s.Equal(models.RequestPending, s.reloadRequest(c).Status)
	s.Equal(models.RequestRejected, s.reloadRequest(late).Status)
	s.Equal(models.RequestApproved, s.reloadRequest(a).Status)
	s.Equal(int64(1), s.count(&models.Request{}, "donation_id = ? AND status = ?", d.ID, models.RequestApproved))
}

func (s *RequestServiceTestSuite) TestApprove_ConcurrentOnlyOneWins() {
	d := testutil.CreateDonation(s.T(), s.db, s.donor.ID)
	var reqs []*models.Request
	for i := 0; i < 5; i++ {
		u := testutil.CreateUser(s.T(), s.db, "racer"+string(rune('a'+i)), models.RoleRecipient)
		reqs = append(reqs, testutil.CreateRequest(s.T(), s.db, d, u.ID, models.RequestPending))
	}

	var wg sync.WaitGroup
	errs := make([]error, len(reqs))
	for i, r := range reqs {
		wg.Add(1)
		go func(i int, id uuid.UUID) {
			defer wg.Done()
			_, errs[i] = s.requests.SetStatus(s.ctx, id, s.donor.ID, models.RequestApproved)
		}(i, r.ID)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		testutil.RequireCode(s.T(), err, apperror.CodeFailedPrecondition)
	}
	s.Equal(1, wins)
	s.Equal(int64(1), s.count(&models.Request{}, "donation_id = ? AND status = ?", d.ID, models.RequestApproved))
	s.Equal(int64(4), s.count(&models.Request{}, "donation_id = ? AND status = ?", d.ID, models.RequestRejected))
}

func (s *RequestServiceTestSuite) TestSetStatus_Guards() {
	d := testutil.CreateDonation(s.T(), s.db, s.donor.ID)
	r := testutil.CreateRequest(s.T(), s.db, d, s.recipient.ID, models.RequestPending)

	_, err := s.requests.SetStatus(s.ctx, r.ID, s.donor.ID, "Shipped")
	testutil.RequireCode(s.T(), err, apperror.CodeInvalidArgument)

	_, err = s.requests.SetStatus(s.ctx, r.ID, s.donor.ID, models.RequestPending)
	testutil.RequireCode(s.T(), err, apperror.CodeInvalidArgument)

	_, err = s.requests.SetStatus(s.ctx, uuid.New(), s.donor.ID, models.RequestApproved)
	testutil.RequireCode(s.T(), err, apperror.CodeNotFound)

	_, err = s.requests.SetStatus(s.ctx, r.ID, s.other.ID, models.RequestApproved)
	s.ErrorIs(err, ErrNotParticipant)

	_, err = s.requests.SetStatus(s.ctx, r.ID, s.recipient.ID, models.RequestApproved)
	s.ErrorIs(err, ErrDonorOnlyStatus)

	_, err = s.requests.SetStatus(s.ctx, r.ID, s.recipient.ID, models.RequestRejected)
	s.ErrorIs(err, ErrDonorOnlyStatus)

	_, err = s.requests.SetStatus(s.ctx, r.ID, s.donor.ID, models.RequestInTransit)
	s.ErrorIs(err, ErrIllegalTransition)

	s.Equal(models.RequestPending, s.reloadRequest(r).Status)
	s.Equal(models.DonationAvailable, s.reloadDonation(d).Status)
}

func (s *RequestServiceTestSuite) TestDeliveryFlow() {
	d := testutil.CreateDonation(s.T(), s.db, s.donor.ID)
	r := testutil.CreateRequest(s.T(), s.db, d, s.recipient.ID, models.RequestPending)

	_, err := s.requests.SetStatus(s.ctx, r.ID, s.donor.ID, models.RequestApproved)
	s.Require().NoError(err)

	// Either participant may move the request along once approved.
	inTransit, err := s.requests.SetStatus(s.ctx, r.ID, s.recipient.ID, models.RequestInTransit)
	s.Require().NoError(err)
	s.NotNil(inTransit.TrackingStatus.InTransit)
	s.Equal(models.DonationClaimed, s.reloadDonation(d).Status)

	delivered, err := s.requests.SetStatus(s.ctx, r.ID, s.donor.ID, models.RequestDelivered)
	s.Require().NoError(err)
	s.NotNil(delivered.TrackingStatus.Delivered)
	s.Equal(inTransit.TrackingStatus.InTransit.Unix(), delivered.TrackingStatus.InTransit.Unix())
	s.Equal(models.DonationDelivered, s.reloadDonation(d).Status)

	_, err = s.requests.SetStatus(s.ctx, r.ID, s.donor.ID, models.RequestCompleted)
	s.ErrorIs(err, ErrIllegalTransition, "Delivered is terminal")
}

func (s *RequestServiceTestSuite) TestCompletedShortcut() {
	d := testutil.CreateDonation(s.T(), s.db, s.donor.ID)
	r := testutil.CreateRequest(s.T(), s.db, d, s.recipient.ID, models.RequestPending)

	_, err := s.requests.SetStatus(s.ctx, r.ID, s.donor.ID, models.RequestApproved)
	s.Require().NoError(err)

	done, err := s.requests.SetStatus(s.ctx, r.ID, s.recipient.ID, models.RequestCompleted)
	s.Require().NoError(err)
	s.Equal(models.RequestCompleted, done.Status)
	s.Equal(models.DonationDelivered, s.reloadDonation(d).Status)
}

func (s *RequestServiceTestSuite) TestReject_HasNoDonationSideEffect() {
	d := testutil.CreateDonation(s.T(), s.db, s.donor.ID)
	r := testutil.CreateRequest(s.T(), s.db, d, s.recipient.ID, models.RequestPending)

	rejected, err := s.requests.SetStatus(s.ctx, r.ID, s.donor.ID, models.RequestRejected)

	s.Require().NoError(err)
	s.Equal(models.RequestRejected, rejected.Status)
	s.False(rejected.ContactShared)
	s.Equal(models.DonationAvailable, s.reloadDonation(d).Status)
}

func (s *RequestServiceTestSuite) TestViews_ContactRevealedAfterApproval() {
	d := testutil.CreateDonation(s.T(), s.db, s.donor.ID)
	r := testutil.CreateRequest(s.T(), s.db, d, s.recipient.ID, models.RequestPending)

	mine, err := s.requests.ListMine(s.ctx, s.recipient.ID)
	s.Require().NoError(err)
	s.Require().Len(mine, 1)
	s.Equal(d.FoodName, mine[0].Donation.FoodName)
	s.Equal(s.donor.Username, mine[0].Donor.Username)
	s.Empty(mine[0].Donor.Email)
	s.Empty(mine[0].Donor.Phone)

	_, err = s.requests.SetStatus(s.ctx, r.ID, s.donor.ID, models.RequestApproved)
	s.Require().NoError(err)

	forMe, err := s.requests.ListForMe(s.ctx, s.donor.ID)
	s.Require().NoError(err)
	s.Require().Len(forMe, 1)
	s.Equal(s.recipient.Email, forMe[0].Recipient.Email)
	s.Equal(s.recipient.Phone, forMe[0].Recipient.Phone)

	_, err = s.requests.Get(s.ctx, r.ID, s.other.ID)
	s.ErrorIs(err, ErrNotParticipant)

	view, err := s.requests.Get(s.ctx, r.ID, s.recipient.ID)
	s.Require().NoError(err)
	s.Equal(s.donor.Email, view.Donor.Email)
}
