package scraper

import (
	"context"
	"testing"

	"car-crawler/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const usedCarsListing = `
<div class="row">
  <div class="col-lg-4">
    <div class="img-item-inner" style="background-image: url(&quot;https://www.usedcars.co.ke/uploads/cars/fielder-1.jpg&quot;);"></div>
    <div class="img-item-inner" style="background-image: url('/uploads/cars/fielder-1.jpg');"></div>
    <h2 class="strong">Toyota 2015 Fielder Hybrid</h2>
    <ul>
      <li><i class="fas fa-map-marker-alt"></i><span>Mombasa</span></li>
      <li><i class="fas fa-gas-pump"></i><span>Hybrid</span></li>
      <li><i class="icon-automatic"></i><span>Automatic</span></li>
      <li><i class="fas fa-road"></i><span>92,300 km</span></li>
      <li><i class="icon-engine"></i><span>1500 cc</span></li>
      <li><i class="icon-racing"></i><span>2WD</span></li>
    </ul>
    <div class="car-price">KES 1,480,000</div>
    <div class="car-price-duty"><span>Duty paid</span></div>
    <a href="/cars/toyota-fielder-2015-8831"><button class="btn-view-detail">View details</button></a>
  </div>
  <div class="col-lg-4">
    <h2 class="strong">Nissan 2012 Note</h2>
    <div class="car-price">KES 0</div>
    <a href="/cars/nissan-note-2012-1200"><button class="btn-view-detail">View details</button></a>
  </div>
  <div class="col-lg-4">
    <h2 class="strong">Subaru 2014 Forester</h2>
    <div class="car-price">KES 2,100,000</div>
  </div>
</div>`

func TestUsedCarsBuildURL(t *testing.T) {
	u := NewUsedCars(testOptions())

	assert.Equal(t, "https://www.usedcars.co.ke/cars-for-sale", u.BuildURL(models.Filter{}))
	assert.Equal(t,
		"https://www.usedcars.co.ke/cars-for-sale?make=Toyota&max_price=2000000&min_year=2014&model=Land+Cruiser",
		u.BuildURL(models.Filter{Make: "Toyota", Model: "Land Cruiser", MinYear: 2014, MaxPrice: 2000000}))
}

func TestUsedCarsPageURL(t *testing.T) {
	u := NewUsedCars(testOptions())
	assert.Equal(t, "https://www.usedcars.co.ke/cars-for-sale?make=Toyota&page=2",
		u.PageURL("https://www.usedcars.co.ke/cars-for-sale?make=Toyota", 2))
}

func TestUsedCarsExtractPage(t *testing.T) {
	u := NewUsedCars(testOptions())
	page := &htmlPage{html: `<html><body>` + usedCarsListing +
		`<ul class="pagination"><li class="next disabled"><a>Next</a></li></ul></body></html>`}

	records := u.ExtractPage(context.Background(), page)
	require.Len(t, records, 1, "zero price and missing detail link are dropped")

	rec := records[0]
	assert.Equal(t, UsedCarsID, rec.SourceID)
	assert.Equal(t, "Toyota 2015 Fielder Hybrid", rec.Get(models.FieldTitle))
	assert.Equal(t, "2015", rec.Get(models.FieldYear))
	assert.Equal(t, "Toyota", rec.Get(models.FieldMake))
	assert.Equal(t, "Fielder Hybrid", rec.Get(models.FieldModel))
	assert.Equal(t, "Mombasa", rec.Get(models.FieldLocation))
	assert.Equal(t, "Hybrid", rec.Get(models.FieldFuelType))
	assert.Equal(t, "Automatic", rec.Get(models.FieldTransmission))
	assert.Equal(t, "92,300 km", rec.Get(models.FieldMileage))
	assert.Equal(t, "1500 cc", rec.Get(models.FieldEngineSize))
	assert.Equal(t, "2WD", rec.Get(models.FieldDriveType))
	assert.Equal(t, "KES 1,480,000", rec.Get(models.FieldPrice))
	assert.Equal(t, "true", rec.Get(models.FieldDutyPaid))
	assert.Equal(t, "https://www.usedcars.co.ke/cars/toyota-fielder-2015-8831", rec.Get(models.FieldURL))
	assert.Equal(t, "toyota-fielder-2015-8831", rec.Get(models.FieldExternalID))
	assert.Equal(t, []string{"https://www.usedcars.co.ke/uploads/cars/fielder-1.jpg"}, rec.Images)

	assert.False(t, u.HasNextPage(context.Background(), page), "disabled next control")
}

func TestUsedCarsHasNextPage(t *testing.T) {
	u := NewUsedCars(testOptions())
	page := &htmlPage{html: `<ul class="pagination"><li class="next"><a href="?page=2">Next</a></li></ul>`}
	assert.True(t, u.HasNextPage(context.Background(), page))
}
