package terraform

import (
	"fmt"
	"strings"

	"github.com/cloudhand/cloudhand/internal/spec"
)

// defaultAllowedOrigins are the Ubuntu security pockets unattended-upgrades
// pulls from when a spec does not override them.
var defaultAllowedOrigins = []string{
	"${distro_id}:${distro_codename}-security",
	"${distro_id}ESMApps:${distro_codename}-apps-security",
	"${distro_id}ESM:${distro_codename}-infra-security",
}

const defaultRebootTime = "04:00"

// baseUserData is the cloud-init baseline every instance boots with: package
// install, root SSH key injection, and unattended security updates. The
// __CH_*__ markers are filled per instance; ${var.ssh_public_key} is left for
// Terraform to interpolate.
const baseUserData = `#cloud-config
package_update: true
package_upgrade: true
packages:
  - git
  - curl
  - python3
  - python3-pip
  - nginx
  - docker.io
  - unattended-upgrades

ssh_pwauth: false
chpasswd:
  expire: False
  list: |
    root:cloudhand-temp-rotate
users:
  - name: root
    ssh_authorized_keys:
      - ${var.ssh_public_key}

write_files:
  - path: /etc/apt/apt.conf.d/20auto-upgrades
    permissions: "0644"
    content: |
      APT::Periodic::Update-Package-Lists "__CH_PERIODIC_UPDATE__";
      APT::Periodic::Unattended-Upgrade "__CH_PERIODIC_UPGRADE__";

  - path: /etc/apt/apt.conf.d/50unattended-upgrades
    permissions: "0644"
    content: |
      Unattended-Upgrade::Allowed-Origins {
__CH_ALLOWED_ORIGINS__
      };

      Unattended-Upgrade::Automatic-Reboot "__CH_AUTO_REBOOT__";
      Unattended-Upgrade::Automatic-Reboot-Time "__CH_REBOOT_TIME__";

  - path: /etc/systemd/system/apt-daily.timer.d/override.conf
    permissions: "0644"
    content: |
      [Timer]
      OnCalendar=
      OnCalendar=*-*-* 02:00:00
      RandomizedDelaySec=15m
      Persistent=false

  - path: /etc/systemd/system/apt-daily-upgrade.timer.d/override.conf
    permissions: "0644"
    content: |
      [Timer]
      OnCalendar=
      OnCalendar=*-*-* 02:15:00
      RandomizedDelaySec=15m
      Persistent=false

runcmd:
  - bash -lc "chage -I -1 -m 0 -M 99999 -E -1 root"
  - bash -lc "chage -d $(date +%Y-%m-%d) root"
  - passwd -d root || true
  - systemctl daemon-reload
  - systemctl restart apt-daily.timer apt-daily-upgrade.timer
  - systemctl enable nginx
  - systemctl start nginx
`

// renderAllowedOrigins emits the Allowed-Origins body. The ${distro_id}
// placeholders belong to apt, not Terraform, so they are escaped to $${.
func renderAllowedOrigins(origins []string) string {
	var b strings.Builder
	for _, origin := range origins {
		escaped := strings.ReplaceAll(origin, "${", "$${")
		fmt.Fprintf(&b, "          %q;\n", escaped)
	}
	return b.String()
}

// userDataForInstance renders the cloud-init document for one instance,
// applying its maintenance policy over the baseline. Stateful hosts (db or
// postgres roles, or an explicit stateful label) default to no automatic
// reboots.
func userDataForInstance(inst *spec.InstanceSpec) string {
	role := strings.ToLower(inst.Labels["role"])
	stateful := strings.ToLower(inst.Labels["stateful"]) == "true" || role == "db" || role == "postgres"

	var policy *spec.UnattendedUpgradesPolicy
	if inst.Maintenance != nil {
		policy = &inst.Maintenance.UnattendedUpgrades
	}

	allowedOrigins := defaultAllowedOrigins
	if policy != nil && len(policy.AllowedOrigins) > 0 {
		allowedOrigins = policy.AllowedOrigins
	}

	autoReboot := !stateful
	rebootTime := defaultRebootTime
	if policy != nil {
		autoReboot = policy.AutoReboot
		if policy.AutoRebootTime != "" {
			rebootTime = policy.AutoRebootTime
		}
	}

	periodic := "1"
	if policy != nil && !policy.IsEnabled() {
		periodic = "0"
	}

	r := strings.NewReplacer(
		"__CH_ALLOWED_ORIGINS__\n", renderAllowedOrigins(allowedOrigins)+"\n",
		"__CH_AUTO_REBOOT__", fmt.Sprintf("%t", autoReboot),
		"__CH_REBOOT_TIME__", rebootTime,
		"__CH_PERIODIC_UPDATE__", periodic,
		"__CH_PERIODIC_UPGRADE__", periodic,
	)
	return r.Replace(baseUserData)
}
