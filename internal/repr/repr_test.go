package repr

import (
	"testing"

	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"

	"pipekit/internal/models"
	"pipekit/internal/testutil"
)

type ReprSuite struct {
	suite.Suite
	db       *gorm.DB
	versions map[string]*models.Version
}

func TestReprSuite(t *testing.T) {
	suite.Run(t, new(ReprSuite))
}

func (s *ReprSuite) SetupTest() {
	s.db = testutil.OpenTestDB(s.T())
	project := testutil.CreateProject(s.T(), s.db, "Test Project", "TP")
	task := testutil.CreateTask(s.T(), s.db, project, nil, "Test Task 1")

	s.versions = map[string]*models.Version{}
	create := func(key, variant string, published bool) {
		s.versions[key] = testutil.CreateVersion(s.T(), s.db, task, variant, published)
	}

	create("main1", "Main", false)
	create("main2", "Main", false)
	create("main3", "Main", false)
	create("bbox1", "Main@BBox", false)
	create("bbox2", "Main@BBox", true)
	create("ass1", "Main@ASS", false)
	create("ass2", "Main@ASS", true)
	create("gpu1", "Main@GPU", false)
	create("gpu2", "Main@GPU", false)
	create("alt1", "alt1", false)
	create("hires1", "alt1@Hires", false)
	create("midres1", "alt1@Midres", false)
	create("lores1", "alt1@Lores", false)
	create("lores2", "alt1@Lores", true)
	create("norepr1", "NoRepr", false)
	create("norepr2", "NoRepr", false)
}

func (s *ReprSuite) rep(key string) *Representation {
	return New(s.db, s.versions[key])
}

func (s *ReprSuite) TestListAllFollowsSortedVariantNames() {
	names, err := s.rep("main1").ListAll()
	s.Require().NoError(err)
	// Main, Main@ASS, Main@BBox, Main@GPU
	s.Equal([]string{"Base", "ASS", "BBox", "GPU"}, names)
}

func (s *ReprSuite) TestListAllFromNonBaseVersion() {
	names, err := s.rep("hires1").ListAll()
	s.Require().NoError(err)
	s.Equal([]string{"Base", "Hires", "Lores", "Midres"}, names)
}

func (s *ReprSuite) TestListAllIgnoresPrefixLookalikes() {
	task := s.versions["main1"].TaskID
	s.Require().NoError(s.db.Create(&models.Version{TaskID: task, VariantName: "Mainframe"}).Error)

	names, err := s.rep("main1").ListAll()
	s.Require().NoError(err)
	s.NotContains(names, "frame")
	s.NotContains(names, "Mainframe")
}

func (s *ReprSuite) TestFindReturnsLatestPublished() {
	found, err := s.rep("main1").Find("BBox")
	s.Require().NoError(err)
	s.Require().NotNil(found)
	s.Equal(s.versions["bbox2"].ID, found.ID)
}

func (s *ReprSuite) TestFindFromDifferentRepr() {
	found, err := s.rep("bbox1").Find("ASS")
	s.Require().NoError(err)
	s.Require().NotNil(found)
	s.Equal(s.versions["ass2"].ID, found.ID)
}

func (s *ReprSuite) TestFindUnknownReprReturnsNil() {
	found, err := s.rep("bbox1").Find("NonExists")
	s.Require().NoError(err)
	s.Nil(found)
}

func (s *ReprSuite) TestFindSkipsUnpublished() {
	// every GPU version is unpublished
	found, err := s.rep("main1").Find("GPU")
	s.Require().NoError(err)
	s.Nil(found)
}

func (s *ReprSuite) TestFindPrefersHighestPublishedNumber() {
	task := s.versions["main1"].TaskID
	older := s.versions["bbox2"]
	newer := &models.Version{TaskID: task, VariantName: "Main@BBox", IsPublished: true}
	s.Require().NoError(s.db.Create(newer).Error)
	s.Greater(newer.VersionNumber, older.VersionNumber)

	found, err := s.rep("main3").Find("BBox")
	s.Require().NoError(err)
	s.Require().NotNil(found)
	s.Equal(newer.ID, found.ID)
}

func (s *ReprSuite) TestHasAnyRepr() {
	ok, err := s.rep("main1").HasAnyRepr()
	s.Require().NoError(err)
	s.True(ok)

	ok, err = s.rep("lores2").HasAnyRepr()
	s.Require().NoError(err)
	s.True(ok)

	ok, err = s.rep("norepr2").HasAnyRepr()
	s.Require().NoError(err)
	s.False(ok)
}

func (s *ReprSuite) TestHasRepr() {
	ok, err := s.rep("main1").HasRepr("BBox")
	s.Require().NoError(err)
	s.True(ok)

	ok, err = s.rep("lores2").HasRepr("Lores")
	s.Require().NoError(err)
	s.True(ok)

	ok, err = s.rep("norepr2").HasRepr("BBox")
	s.Require().NoError(err)
	s.False(ok)
}

func (s *ReprSuite) TestIsBase() {
	s.True(s.rep("main1").IsBase())
	s.False(s.rep("bbox1").IsBase())
	s.Equal(BaseReprName, s.rep("main1").Repr())
}

func (s *ReprSuite) TestIsRepr() {
	s.True(s.rep("main1").IsRepr(BaseReprName))
	s.False(s.rep("bbox1").IsRepr(BaseReprName))
	s.True(s.rep("bbox1").IsRepr("BBox"))
}

func (s *ReprSuite) TestIsReprAcceptsBaseVariantName() {
	s.True(s.rep("main1").IsRepr("Main"))
	s.False(s.rep("bbox1").IsRepr("Main"))
	s.True(s.rep("hires1").IsRepr("Hires"))
}

func (s *ReprSuite) TestFindComposesBaseVariantName() {
	s.Require().NoError(s.db.Model(s.versions["main3"]).Update("is_published", true).Error)

	found, err := s.rep("bbox1").Find("Main")
	s.Require().NoError(err)
	s.Nil(found)

	found, err = s.rep("bbox1").Find(BaseReprName)
	s.Require().NoError(err)
	s.Require().NotNil(found)
	s.Equal(s.versions["main3"].ID, found.ID)

	var task models.Task
	s.Require().NoError(s.db.First(&task, s.versions["main1"].TaskID).Error)
	mainMain := testutil.CreateVersion(s.T(), s.db, &task, "Main@Main", true)

	found, err = s.rep("bbox1").Find("Main")
	s.Require().NoError(err)
	s.Require().NotNil(found)
	s.Equal(mainMain.ID, found.ID)
}

func (s *ReprSuite) TestRepr() {
	s.Equal("Base", s.rep("main1").Repr())
	s.Equal("BBox", s.rep("bbox1").Repr())
}

func (s *ReprSuite) TestNilVersion() {
	r := New(s.db, nil)
	s.Nil(r.Version())
	s.Equal("", r.Repr())
	s.False(r.IsBase())

	found, err := r.Find("BBox")
	s.NoError(err)
	s.Nil(found)

	names, err := r.ListAll()
	s.NoError(err)
	s.Empty(names)
}

func (s *ReprSuite) TestSetVersion() {
	r := New(s.db, s.versions["main1"])
	r.SetVersion(s.versions["main2"])
	s.Equal(s.versions["main2"], r.Version())
	r.SetVersion(nil)
	s.Nil(r.Version())
}

func (s *ReprSuite) TestUniqueVariantNames() {
	task := s.versions["main1"].TaskID

	all, err := UniqueVariantNames(s.db, task, true)
	s.Require().NoError(err)
	s.Equal([]string{
		"Main", "Main@ASS", "Main@BBox", "Main@GPU",
		"NoRepr", "alt1", "alt1@Hires", "alt1@Lores", "alt1@Midres",
	}, all)

	bases, err := UniqueVariantNames(s.db, task, false)
	s.Require().NoError(err)
	s.Equal([]string{"Main", "NoRepr", "alt1"}, bases)
}

func TestFindOnlyPublishedMain(t *testing.T) {
	db := testutil.OpenTestDB(t)
	project := testutil.CreateProject(t, db, "Solo", "SOLO")
	task := testutil.CreateTask(t, db, project, nil, "Model")
	main := testutil.CreateVersion(t, db, task, "Main", true)

	r := New(db, main)
	found, err := r.Find(BaseReprName)
	if err != nil {
		t.Fatalf("find base: %v", err)
	}
	if found == nil || found.ID != main.ID {
		t.Fatalf("expected version %d, got %+v", main.ID, found)
	}

	found, err = r.Find("BBox")
	if err != nil {
		t.Fatalf("find bbox: %v", err)
	}
	if found != nil {
		t.Fatalf("expected no BBox version, got %d", found.ID)
	}
}
