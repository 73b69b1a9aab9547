package dispatch

import (
	"fmt"
	"strconv"
	"time"

	"github.com/propertyline/triage/internal/models"
)

const arrivalWindow = 30 * time.Minute

func technicianMessage(t models.Ticket, class models.Classification) string {
	return fmt.Sprintf(`%s DISPATCH
Issue: %s
Location: %s Unit %s
Tenant: %s
Description: %s
Est. Time: %sh
Reply YES to accept or NO to decline`,
		t.Urgency, t.Title, t.PropertyID, t.Unit, t.TenantPhone, t.Description,
		strconv.FormatFloat(class.TimeEstimateHours, 'f', -1, 64))
}

func tenantMessage(t models.Ticket, tech models.Technician, eta time.Time) string {
	return fmt.Sprintf(`Your maintenance request has been received and assigned to %s.
They will arrive between %s and %s.
They will call you at %s when they're on the way.
Reference #: %s`,
		tech.Name, eta.Format(time.Kitchen), eta.Add(arrivalWindow).Format(time.Kitchen),
		t.TenantPhone, t.ReferenceNumber())
}
